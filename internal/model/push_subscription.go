package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A subscription is notified when one of its subscribed students is marked
// present.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Students []*Student `gorm:"many2many:subscription_student_mapping;"`
}
