package barefoot

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"barefoot_sync/internal/adapters/observability"
	"barefoot_sync/internal/domain"
	"barefoot_sync/internal/xmltree"
)

const (
	service       = "barefoot"
	userAgent     = "barefoot-sync/1.0"
	maxReplyBytes = 32 << 20
)

type Options struct {
	ConnectTimeout time.Duration // WSDL fetch, default 30s
	CallTimeout    time.Duration // per operation, default 60s
	RPS            int
	RetryAttempts  int // total attempts per call, default 3
	HTTPClient     *http.Client
}

// Client talks SOAP 1.2 to a Barefoot endpoint. The WSDL session is created
// lazily, dropped on transport failure and recreated on the next call.
type Client struct {
	creds          domain.Credentials
	hc             *http.Client
	rl             *rate.Limiter
	connectTimeout time.Duration
	callTimeout    time.Duration
	attempts       int

	mu      sync.Mutex
	sess    *session
	lastErr error
}

func New(creds domain.Credentials, opts Options) (*Client, error) {
	if creds.Endpoint == "" {
		return nil, fmt.Errorf("barefoot endpoint is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 5
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		creds:          creds,
		hc:             hc,
		rl:             rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS),
		connectTimeout: opts.ConnectTimeout,
		callTimeout:    opts.CallTimeout,
		attempts:       opts.RetryAttempts,
	}, nil
}

// Connect establishes the session if there is none.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

// Available reports whether a session is currently established.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// LastError is the fault captured by the most recent failed connect.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) Endpoint() string { return c.creds.Endpoint }

func (c *Client) session(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess, nil
	}
	s, err := c.introspect(ctx)
	if err != nil {
		c.lastErr = err
		log.Warn().Err(err).Str("endpoint", c.creds.Endpoint).Msg("barefoot connect failed")
		return nil, domain.E(domain.KindConnectionUnavailable, "connect", err)
	}
	c.lastErr = nil
	c.sess = s
	log.Debug().Int("operations", len(s.ops)).Msg("barefoot session established")
	return s, nil
}

func (c *Client) discard() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

func (c *Client) introspect(ctx context.Context) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	var buf bytes.Buffer
	start := time.Now()
	status := 0
	err := requests.
		URL(c.creds.Endpoint + "?WSDL").
		Client(c.hc).
		UserAgent(userAgent).
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return requests.DefaultValidator(res)
		}).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	observability.ObserveExternal(service, "WSDL", status, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch wsdl: %w", err)
	}
	return parseWSDL(buf.Bytes())
}

// Call invokes op with the auth block merged ahead of params. Transport
// errors are retried with backoff; SOAP faults are returned at once.
func (c *Client) Call(ctx context.Context, op string, params ...Param) (domain.RawReply, error) {
	s, err := c.session(ctx)
	if err != nil {
		return domain.RawReply{}, err
	}
	if !s.offers(op) {
		return domain.RawReply{}, domain.E(domain.KindProtocolFault, op, fmt.Errorf("operation %s is not offered by the service", op))
	}
	env := buildEnvelope(op, c.withAuth(params))

	var lastErr error
	for i := 0; i < c.attempts; i++ {
		// client-side rate limiting
		if err := c.rl.Wait(ctx); err != nil {
			return domain.RawReply{}, domain.E(domain.KindTransport, op, err)
		}

		reply, wait, retry, err := c.post(ctx, op, env)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			c.discard()
			return domain.RawReply{}, domain.E(domain.KindTransport, op, ctx.Err())
		}
		lastErr = err
		if !retry || i == c.attempts-1 {
			break
		}
		if wait == 0 {
			wait = backoff(i)
		}
		log.Debug().Err(err).Str("op", op).Int("attempt", i+1).Dur("wait", wait).Msg("retrying barefoot call")
		if !sleepCtx(ctx, wait) {
			return domain.RawReply{}, domain.E(domain.KindTransport, op, ctx.Err())
		}
	}
	if domain.KindOf(lastErr) == domain.KindTransport {
		c.discard()
	}
	log.Warn().Err(lastErr).Str("op", op).Str("kind", observability.LabelErr(lastErr)).Msg("barefoot call failed")
	return domain.RawReply{}, lastErr
}

func (c *Client) withAuth(params []Param) []Param {
	out := []Param{
		{Name: "username", Value: c.creds.Username},
		{Name: "password", Value: c.creds.Password},
		{Name: "barefootAccount", Value: c.creds.Account},
	}
	for _, p := range params {
		switch strings.ToLower(p.Name) {
		case "username", "password", "barefootaccount":
			continue
		}
		out = append(out, p)
	}
	return out
}

// post performs one attempt. retry reports whether the failure is transient.
func (c *Client) post(ctx context.Context, op string, env []byte) (reply domain.RawReply, wait time.Duration, retry bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var buf bytes.Buffer
	status := 0
	start := time.Now()
	err = requests.
		URL(c.creds.Endpoint).
		Client(c.hc).
		Post().
		BodyBytes(env).
		ContentType(contentType(op)).
		UserAgent(userAgent).
		// faults arrive with HTTP 500, status is judged after decoding
		AddValidator(func(*http.Response) error { return nil }).
		Handle(func(res *http.Response) error {
			status = res.StatusCode
			wait = retryAfter(res)
			_, err := io.Copy(&buf, io.LimitReader(res.Body, maxReplyBytes))
			return err
		}).
		Fetch(ctx)
	observability.ObserveExternal(service, op, status, time.Since(start))
	if err != nil {
		// network error or timeout
		return reply, 0, true, domain.E(domain.KindTransport, op, err)
	}

	name, content, perr := parseEnvelope(buf.Bytes())
	var fault *Fault
	if errors.As(perr, &fault) {
		return reply, 0, false, domain.E(domain.KindProtocolFault, op, fault)
	}
	if status < 200 || status > 299 {
		err := fmt.Errorf("remote %d: %s", status, snippet(buf.Bytes()))
		return reply, wait, retryableStatus(status), domain.E(domain.KindTransport, op, err)
	}
	if perr != nil {
		return reply, 0, false, domain.E(domain.KindTransport, op, perr)
	}
	payload, ok := xmltree.AsMap(content)
	if !ok {
		payload = map[string]any{}
	}
	if name != "" && !strings.EqualFold(name, op+"Response") {
		log.Debug().Str("op", op).Str("element", name).Msg("unexpected response element")
	}
	return domain.RawReply{Operation: op, Payload: payload}, 0, false, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return strings.TrimSpace(string(b))
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff: 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
