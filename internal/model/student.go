package model

import "time"

// Student represents a registered person.
type Student struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	Name             string    `gorm:"size:256;not null" json:"name"`
	RegistrationDate time.Time `gorm:"not null" json:"registration_date"`

	// Associations
	Templates []FaceTemplate `gorm:"foreignKey:StudentID" json:"-"`
}
