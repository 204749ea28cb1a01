package domain

import "time"

// Credentials for the Barefoot service. Loaded once at startup.
type Credentials struct {
	Endpoint string
	Username string
	Password string
	Account  string
}

type Location struct {
	Street      *string
	Street2     *string
	City        *string
	State       *string
	Zip         *string
	Country     *string
	CountryCode *string // ISO 3166-1 alpha-2 when recognized
	Region      *string
	Lat, Lon    *float64
	Display     *string // "City, State" or region
}

// Property is the canonical, shape-independent form of one remote record.
type Property struct {
	RemoteID     string
	Title        string
	Description  *string
	PropertyType *string
	Status       *string // remote status field, not the local publish state
	Location     Location
	Amenities    []string
	MinPrice     *float64
	MaxPrice     *float64
	Occupancy    *int
	Bedrooms     *int
	Bathrooms    *int
	ContactPhone *string
	RawFields    []byte // JSON object of fields not modeled above
	Checksum     string
}

const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
)

// LocalProperty is the persisted entity, keyed locally by ID and linked to
// the remote record by RemoteID.
type LocalProperty struct {
	ID           int64
	PublishState string
	Property
	Images       []PropertyImage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt time.Time
}

type PropertyImage struct {
	Position int
	URL      string
	Caption  *string
}
