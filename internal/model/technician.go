package model

import "time"

// TechnicianUnavailability marks a day a technician cannot take work.
type TechnicianUnavailability struct {
	TechnicianName string    `gorm:"primaryKey;size:128" json:"technician_name"`
	Date           string    `gorm:"primaryKey;size:10" json:"date"` // YYYY-MM-DD
	Reason         string    `gorm:"size:256" json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
