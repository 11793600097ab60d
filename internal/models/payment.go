package models

import "time"

// PaymentEvent records a processed payment provider event. ProviderRef is the
// idempotency key: the checkout session id for checkout events, the event id otherwise.
type PaymentEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProviderRef string    `gorm:"size:255;not null;uniqueIndex" json:"provider_ref"`
	EventID     string    `gorm:"size:255;not null" json:"event_id"`
	Type        string    `gorm:"size:100;not null" json:"type"`
	UserID      uint      `gorm:"index" json:"user_id"`
	Credits     int       `json:"credits"`
	Tier        string    `gorm:"size:20" json:"tier,omitempty"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}

// All lists the models managed by AutoMigrate.
func All() []any {
	return []any{&User{}, &StoredQuote{}, &PaymentEvent{}}
}
