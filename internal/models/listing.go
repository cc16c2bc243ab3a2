package models

import "time"

// Listing roles. They drive the marker badge only.
const (
	RoleOwner  = "owner"
	RoleDealer = "dealer"
	RoleBroker = "broker"
)

// Pin is a map coordinate.
type Pin struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing is a property record stored in the listings table.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Locality    string    `json:"locality,omitempty"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	ImageURL    *string   `json:"image_url"`
	OwnerID     string    `json:"owner_id"`
	OwnerEmail  string    `json:"owner_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Position returns the listing's map coordinate.
func (l *Listing) Position() Pin {
	return Pin{Lat: l.Lat, Lng: l.Lng}
}

// ListingFields is the JSON body for POST /api/listings. Ownership is never
// taken from the payload.
type ListingFields struct {
	Title       string  `json:"title"       validate:"required,max=120"`
	Description string  `json:"description" validate:"max=4000"`
	Price       int64   `json:"price"       validate:"gt=0"`
	Locality    string  `json:"locality"    validate:"max=120"`
	Phone       string  `json:"phone"       validate:"phone10"`
	Role        string  `json:"role"        validate:"omitempty,oneof=owner dealer broker"`
	Lat         float64 `json:"lat"         validate:"finite"`
	Lng         float64 `json:"lng"         validate:"finite"`
	ImageURL    *string `json:"image_url"   validate:"omitempty,http_url"`
}

// ListingFilter narrows List results. Zero values mean "any".
type ListingFilter struct {
	OwnerID string
	Role    string
	Limit   int
}

// Listing event types.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// ListingEvent is an audit record kept in MongoDB.
type ListingEvent struct {
	ListingID  string    `json:"listing_id"  bson:"listing_id"`
	Type       string    `json:"type"        bson:"type"`
	ActorID    string    `json:"actor_id"    bson:"actor_id"`
	ActorEmail string    `json:"actor_email" bson:"actor_email"`
	Title      string    `json:"title"       bson:"title"`
	CreatedAt  time.Time `json:"created_at"  bson:"created_at"`
}
