package model

import "time"

// ModelType is the equipment class of a product.
type ModelType string

const (
	ModelTypePowered ModelType = "powered"
	ModelTypeRollIn  ModelType = "roll_in"
)

// Valid reports whether t is a known equipment class.
func (t ModelType) Valid() bool {
	return t == ModelTypePowered || t == ModelTypeRollIn
}

// Product is a registered piece of equipment.
type Product struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	SerialNumber     string    `gorm:"uniqueIndex;size:128;not null" json:"serial_number"`
	ModelName        string    `gorm:"size:128" json:"model_name"`
	ModelType        ModelType `gorm:"size:16;not null" json:"model_type"`
	City             string    `gorm:"size:64;not null" json:"city"`
	LocationDetail   string    `gorm:"size:256" json:"location_detail,omitempty"`
	RegistrationDate time.Time `gorm:"not null" json:"registration_date"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasSLA reports whether the product's customer issues run against a time-bound SLA.
func (p *Product) HasSLA() bool {
	return p.ModelType != ModelTypeRollIn
}
