package models

import "time"

// PropertyStatus is the closed set of listing states.
type PropertyStatus string

const (
	PropertyForSale PropertyStatus = "for_sale"
	PropertyForRent PropertyStatus = "for_rent"
	PropertySold    PropertyStatus = "sold"
	PropertyRented  PropertyStatus = "rented"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyForSale, PropertyForRent, PropertySold, PropertyRented:
		return true
	}
	return false
}

type Property struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Type        string         `json:"type"`
	Price       float64        `json:"price"`
	Address     string         `json:"address"`
	City        string         `json:"city,omitempty"`
	ZipCode     string         `json:"zip_code,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      PropertyStatus `json:"status"`
	Area        float64        `json:"area,omitempty"`
	Bedrooms    int            `json:"bedrooms,omitempty"`
	Bathrooms   int            `json:"bathrooms,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	IsActive    bool           `json:"is_active"`
	IsFeatured  bool           `json:"is_featured"`
	ViewCount   int64          `json:"view_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PropertyFilter narrows property listings. Zero values mean "no filter".
type PropertyFilter struct {
	Search   string
	Type     string
	Status   PropertyStatus
	IsActive *bool
}
