package model

import "time"

// Logical entity names as registered by the legacy schema.
const (
	NameEmailSubscription = "Subscriber"
	NamePhoneSubscription = "SubscriberSMS"
	NameCustomer          = "Client"
	NameIdentity          = "User"
)

// LogicalNames lists every entity the engine needs resolved before it runs.
var LogicalNames = []string{
	NameEmailSubscription,
	NamePhoneSubscription,
	NameCustomer,
	NameIdentity,
}

// EmailSubscription is an opt-in captured through an email channel.
type EmailSubscription struct {
	ID        int64
	Email     string
	Consent   bool
	CreatedAt time.Time
}

// PhoneSubscription is an opt-in captured through an SMS channel.
type PhoneSubscription struct {
	ID        int64
	Phone     string
	Consent   bool
	CreatedAt time.Time
}

// CustomerRecord is a registry entry that may link an email to a phone.
type CustomerRecord struct {
	ID        int64
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Identity is the unified consent record.
type Identity struct {
	ID        int64
	Email     string
	Phone     string
	Consent   bool
	CreatedAt time.Time
}

// HasEmail reports whether the identity claims an email.
func (i Identity) HasEmail() bool { return i.Email != "" }

// HasPhone reports whether the identity claims a phone.
func (i Identity) HasPhone() bool { return i.Phone != "" }

// NewerThan reports whether a is strictly after b. A missing timestamp on
// either side is never newer.
func NewerThan(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a.After(b)
}
