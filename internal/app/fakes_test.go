package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"barefoot_sync/internal/domain"
)

// ---- client ----

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	replies    map[string]domain.RawReply
	errs       map[string]error
	images     map[string]domain.RawReply
	calls      []string

	// gate, when set, blocks Connect until closed; entered is signalled first
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.record("connect")
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.connectErr
}

func (f *fakeClient) TestConnection(ctx context.Context) domain.ConnectionStatus {
	if f.connectErr != nil {
		return domain.ConnectionStatus{Message: f.connectErr.Error()}
	}
	return domain.ConnectionStatus{Success: true, Message: "ok", OperationCount: len(f.replies)}
}

func (f *fakeClient) PropertyOperations(ctx context.Context) ([]string, error) {
	var ops []string
	for op := range f.replies {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops, nil
}

func (f *fakeClient) FetchProperties(ctx context.Context, op string) (domain.RawReply, error) {
	f.record(op)
	if err := f.errs[op]; err != nil {
		return domain.RawReply{}, err
	}
	r, ok := f.replies[op]
	if !ok {
		return domain.RawReply{}, domain.E(domain.KindProtocolFault, op, errors.New("operation not offered"))
	}
	return r, nil
}

func (f *fakeClient) GetPropertyImages(ctx context.Context, remoteID string) (domain.RawReply, error) {
	f.record("images:" + remoteID)
	if r, ok := f.images[remoteID]; ok {
		return r, nil
	}
	return domain.RawReply{Operation: "GetPropertyAllImgs", Payload: map[string]any{}}, nil
}

func (f *fakeClient) GetPropertyRates(ctx context.Context, remoteID string, from, to time.Time) (domain.RawReply, error) {
	f.record("rates:" + remoteID)
	return domain.RawReply{Operation: "GetPropertyRates", Payload: map[string]any{
		"GetPropertyRatesResult": map[string]any{"Rate": []any{
			map[string]any{"date1": "01/01/2026", "rent": "250"},
		}},
	}}, nil
}

func (f *fakeClient) GetPropertyBookingDates(ctx context.Context, remoteID string, from, to time.Time) (domain.RawReply, error) {
	f.record("booking:" + remoteID)
	return domain.RawReply{}, domain.E(domain.KindTransport, "GetPropertyBookingDate", errors.New("timeout"))
}

func (f *fakeClient) called(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// ---- store ----

type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	byRemote map[string]domain.LocalProperty
	failOn   map[string]bool // remote ids whose writes fail
	images   map[int64][]domain.PropertyImage
	rates    map[int64][]byte
	runs     []domain.SyncResult
	creates  int
	updates  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byRemote: map[string]domain.LocalProperty{},
		failOn:   map[string]bool{},
		images:   map[int64][]domain.PropertyImage{},
		rates:    map[int64][]byte{},
	}
}

func (s *fakeStore) FindByRemoteID(ctx context.Context, remoteID string) (domain.LocalProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, ok := s.byRemote[remoteID]
	if !ok {
		return domain.LocalProperty{}, domain.ErrNotFound
	}
	return lp, nil
}

func (s *fakeStore) Create(ctx context.Context, p domain.Property) (domain.LocalProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[p.RemoteID] {
		return domain.LocalProperty{}, errors.New("disk full")
	}
	s.nextID++
	s.creates++
	lp := domain.LocalProperty{ID: s.nextID, PublishState: domain.StatusPublish, Property: p}
	s.byRemote[p.RemoteID] = lp
	return lp, nil
}

func (s *fakeStore) Update(ctx context.Context, existing domain.LocalProperty, p domain.Property) (domain.LocalProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[p.RemoteID] {
		return domain.LocalProperty{}, errors.New("disk full")
	}
	s.updates++
	existing.Property = p
	existing.PublishState = domain.StatusPublish
	s.byRemote[p.RemoteID] = existing
	return existing, nil
}

func (s *fakeStore) ReplaceImages(ctx context.Context, id int64, imgs []domain.PropertyImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = imgs
	return nil
}

func (s *fakeStore) SaveRates(ctx context.Context, id int64, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[id] = raw
	return nil
}

func (s *fakeStore) SaveAvailability(ctx context.Context, id int64, raw []byte) error { return nil }

func (s *fakeStore) MarkOrphans(ctx context.Context, keep []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, id := range keep {
		set[id] = true
	}
	var drafted []int64
	for rid, lp := range s.byRemote {
		if !set[rid] && lp.PublishState != domain.StatusDraft {
			lp.PublishState = domain.StatusDraft
			s.byRemote[rid] = lp
			drafted = append(drafted, lp.ID)
		}
	}
	return drafted, nil
}

func (s *fakeStore) RecordRun(ctx context.Context, r domain.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *fakeStore) GetProperty(ctx context.Context, id int64) (domain.PropertyView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lp := range s.byRemote {
		if lp.ID == id && lp.PublishState != domain.StatusDraft {
			return domain.PropertyView{ID: lp.ID, RemoteID: lp.RemoteID, Title: lp.Title}, nil
		}
	}
	return domain.PropertyView{}, domain.ErrNotFound
}

func (s *fakeStore) SearchProperties(ctx context.Context, q domain.PropertyQuery) (domain.PropertyPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out domain.PropertyPage
	for _, lp := range s.byRemote {
		out.Items = append(out.Items, domain.PropertyView{ID: lp.ID, RemoteID: lp.RemoteID, Title: lp.Title})
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	return out, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRemote)
}

// ---- cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.PropertyView:
		*d = v.(domain.PropertyView)
	case *domain.PropertyPage:
		*d = v.(domain.PropertyPage)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- lease ----

type fakeLease struct {
	held     bool
	err      error
	released int
}

func (l *fakeLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, domain.ErrRunInProgress
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

// ---- payload builders ----

func propertiesReply(op string, props ...map[string]any) domain.RawReply {
	list := make([]any, len(props))
	for i, p := range props {
		list[i] = p
	}
	var inner any = list
	if len(props) == 1 {
		inner = props[0]
	}
	return domain.RawReply{Operation: op, Payload: map[string]any{
		op + "Result": map[string]any{"PROPERTIES": map[string]any{"PROPERTY": inner}},
	}}
}

func prop(id, name string, extra ...string) map[string]any {
	m := map[string]any{"PropertyID": id, "Name": name}
	for i := 0; i+1 < len(extra); i += 2 {
		m[extra[i]] = extra[i+1]
	}
	return m
}

func ptr[T any](v T) *T { return &v }
