package models

import (
	"math"
	"time"
)

// AmountSentinel bounds ids, supplies, fees and amounts. Values at or above it are
// rejected so every quantity fits a signed 64-bit column.
const AmountSentinel uint64 = math.MaxInt64

// Course tracks the place inventory of a single course.
type Course struct {
	ID              uint64    `db:"id" json:"id"`
	FeePerPlace     uint64    `db:"fee_per_place" json:"fee_per_place"`
	TotalPlaces     uint64    `db:"total_places" json:"total_places"`
	PlacesPurchased uint64    `db:"places_purchased" json:"places_purchased"`
	PassedCount     uint64    `db:"passed_count" json:"passed_count"`
	Creator         string    `db:"creator" json:"creator"`
	MetadataURI     string    `db:"metadata_uri" json:"metadata_uri"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Exists reports whether the course has been created. A course without a creator
// is treated as absent.
func (c *Course) Exists() bool {
	return c != nil && c.Creator != ""
}

// UnsoldPlaces returns the places still held by the creator.
func (c *Course) UnsoldPlaces() uint64 {
	if c == nil || c.PlacesPurchased >= c.TotalPlaces {
		return 0
	}
	return c.TotalPlaces - c.PlacesPurchased
}

// CourseSummary is the read view of a course with its member sets.
type CourseSummary struct {
	Course
	Evaluators []string `json:"evaluators"`
	Students   []string `json:"students"`
}

// CreateCourseRequest creates a course or adds supply to an existing one.
type CreateCourseRequest struct {
	ID            uint64 `json:"id"`
	InitialSupply uint64 `json:"initial_supply" validate:"required"`
	URI           string `json:"uri" validate:"max=2048"`
	Fee           uint64 `json:"fee"`
}

// RemovePlacesRequest burns unsold places from an owner.
type RemovePlacesRequest struct {
	From     string `json:"from" validate:"required,address"`
	Quantity uint64 `json:"quantity" validate:"required"`
}

// CourseURIRequest replaces the course metadata URI.
type CourseURIRequest struct {
	URI string `json:"uri" validate:"required,max=2048"`
}

// AddressRequest carries a single account address.
type AddressRequest struct {
	Address string `json:"address" validate:"required,address"`
}
