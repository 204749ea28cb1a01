package domain

import (
	"context"
	"encoding/json"
	"time"
)

type PropertyStore interface {
	// Write paths
	FindByRemoteID(ctx context.Context, remoteID string) (LocalProperty, error)
	Create(ctx context.Context, p Property) (LocalProperty, error)
	Update(ctx context.Context, existing LocalProperty, p Property) (LocalProperty, error)
	ReplaceImages(ctx context.Context, id int64, imgs []PropertyImage) error
	SaveRates(ctx context.Context, id int64, raw []byte) error
	SaveAvailability(ctx context.Context, id int64, raw []byte) error
	MarkOrphans(ctx context.Context, keepRemoteIDs []string) ([]int64, error) // local ids drafted
	RecordRun(ctx context.Context, r SyncResult) error

	// Read paths
	GetProperty(ctx context.Context, id int64) (PropertyView, error)
	SearchProperties(ctx context.Context, q PropertyQuery) (PropertyPage, error)
}

type BarefootClient interface {
	Connect(ctx context.Context) error
	TestConnection(ctx context.Context) ConnectionStatus
	PropertyOperations(ctx context.Context) ([]string, error)
	FetchProperties(ctx context.Context, op string) (RawReply, error)
	GetPropertyImages(ctx context.Context, remoteID string) (RawReply, error)
	GetPropertyRates(ctx context.Context, remoteID string, from, to time.Time) (RawReply, error)
	GetPropertyBookingDates(ctx context.Context, remoteID string, from, to time.Time) (RawReply, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// RunLease grants exclusive ownership of a named run for at most ttl.
// Acquire returns ErrRunInProgress when another holder owns the lease.
type RunLease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Read models & queries
type PropertyView struct {
	ID           int64           `json:"id"`
	RemoteID     string          `json:"remote_id"`
	Title        string          `json:"title"`
	Description  *string         `json:"description,omitempty"`
	PropertyType *string         `json:"property_type,omitempty"`
	Location     *string         `json:"location,omitempty"`
	City         *string         `json:"city,omitempty"`
	State        *string         `json:"state,omitempty"`
	CountryCode  *string         `json:"country_code,omitempty"`
	Coords       *Coords         `json:"coords,omitempty"`
	Amenities    []string        `json:"amenities"`
	MinPrice     *float64        `json:"min_price,omitempty"`
	MaxPrice     *float64        `json:"max_price,omitempty"`
	Occupancy    *int            `json:"occupancy,omitempty"`
	Bedrooms     *int            `json:"bedrooms,omitempty"`
	Bathrooms    *int            `json:"bathrooms,omitempty"`
	Images       []ImageView     `json:"images,omitempty"`
	Rates        json.RawMessage `json:"rates,omitempty"`
	Availability json.RawMessage `json:"availability,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type ImageView struct {
	URL     string  `json:"url"`
	Caption *string `json:"caption,omitempty"`
}

type PropertyQuery struct {
	Q            *string
	PropertyType *string
	Location     *string
	Amenity      *string
	MinPrice     *float64
	MaxPrice     *float64
	MinOccupancy *int
	Limit        int
	Cursor       *string
}

type PropertyPage struct {
	Items      []PropertyView `json:"items"`
	NextCursor *string        `json:"next_cursor,omitempty"`
}
