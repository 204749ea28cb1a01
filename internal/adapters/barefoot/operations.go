package barefoot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"barefoot_sync/internal/domain"
	"barefoot_sync/internal/xmltree"
)

// Operation names as published by the service.
const (
	OpGetURLTest             = "GetUrlTest"
	OpGetAllProperty         = "GetAllProperty"
	OpGetProperty            = "GetProperty"
	OpGetPropertyExt         = "GetPropertyExt"
	OpGetLastUpdatedProperty = "GetLastUpdatedProperty"
	OpGetPropertyAllImgs     = "GetPropertyAllImgs"
	OpGetPropertyRates       = "GetPropertyRates"
	OpGetPropertyBookingDate = "GetPropertyBookingDate"
)

// dateLayout is the MM/DD/YYYY form the service accepts for date ranges.
const dateLayout = "01/02/2006"

// TestConnection re-introspects the service. Success requires at least one
// operation; GetUrlTest is reported as Endpoint when offered.
func (c *Client) TestConnection(ctx context.Context) domain.ConnectionStatus {
	c.discard()
	s, err := c.session(ctx)
	if err != nil {
		return domain.ConnectionStatus{Message: "Connection failed: " + err.Error()}
	}
	st := domain.ConnectionStatus{OperationCount: len(s.ops)}
	if len(s.ops) == 0 {
		st.Message = "Connected, but the service description lists no operations"
		return st
	}
	st.Success = true
	st.Message = fmt.Sprintf("Connection successful. %d operations available.", len(s.ops))
	if s.offers(OpGetURLTest) {
		reply, err := c.Call(ctx, OpGetURLTest)
		if err != nil {
			log.Warn().Err(err).Msg("GetUrlTest failed")
		} else {
			st.Endpoint = xmltree.Text(xmltree.Lookup(reply.Payload, OpGetURLTest+"Result"))
		}
	}
	return st
}

// Operations lists every operation the service description offers.
func (c *Client) Operations(ctx context.Context) ([]string, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), s.ops...), nil
}

// PropertyOperations lists the offered operations whose name mentions
// "property".
func (c *Client) PropertyOperations(ctx context.Context) ([]string, error) {
	ops, err := c.Operations(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, op := range ops {
		if strings.Contains(strings.ToLower(op), "property") {
			out = append(out, op)
		}
	}
	return out, nil
}

// FetchProperties calls a parameterless "fetch many" operation.
func (c *Client) FetchProperties(ctx context.Context, op string) (domain.RawReply, error) {
	return c.Call(ctx, op)
}

func (c *Client) GetAllProperties(ctx context.Context) (domain.RawReply, error) {
	return c.Call(ctx, OpGetAllProperty)
}

func (c *Client) GetPropertyImages(ctx context.Context, remoteID string) (domain.RawReply, error) {
	return c.Call(ctx, OpGetPropertyAllImgs, Param{Name: "propertyId", Value: remoteID})
}

func (c *Client) GetPropertyRates(ctx context.Context, remoteID string, from, to time.Time) (domain.RawReply, error) {
	return c.Call(ctx, OpGetPropertyRates, rangeParams(remoteID, from, to)...)
}

func (c *Client) GetPropertyBookingDates(ctx context.Context, remoteID string, from, to time.Time) (domain.RawReply, error) {
	return c.Call(ctx, OpGetPropertyBookingDate, rangeParams(remoteID, from, to)...)
}

func rangeParams(remoteID string, from, to time.Time) []Param {
	ps := []Param{{Name: "propertyId", Value: remoteID}}
	if !from.IsZero() {
		ps = append(ps, Param{Name: "startDate", Value: from.Format(dateLayout)})
	}
	if !to.IsZero() {
		ps = append(ps, Param{Name: "endDate", Value: to.Format(dateLayout)})
	}
	return ps
}
