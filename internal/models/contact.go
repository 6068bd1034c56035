package models

import "time"

// ContactType classifies how a contact came to exist. Demo contacts are
// seeded by the system and cannot be removed.
type ContactType string

const (
	ContactStandard ContactType = "standard"
	ContactDemo     ContactType = "demo"
	ContactQR       ContactType = "qr-generated"
)

// HistoryAction labels one entry in a contact's call history.
type HistoryAction string

const (
	CallStarted HistoryAction = "call_started"
	CallEnded   HistoryAction = "call_ended"
	CallFailed  HistoryAction = "call_failed"
)

// MaxHistoryEntries caps the per-contact call history.
const MaxHistoryEntries = 10

// Contact maps a user-memorable name to a call-room id.
type Contact struct {
	ID          string         `json:"id"` // room id the contact resolves to
	Name        string         `json:"name"`
	Created     time.Time      `json:"created"`
	LastContact time.Time      `json:"lastContact,omitzero"`
	ContactType ContactType    `json:"contactType"`
	Signature   string         `json:"signature"` // decorative, carried for link payloads
	History     []HistoryEntry `json:"history,omitempty"`
}

// HistoryEntry records one completed, failed, or started call.
type HistoryEntry struct {
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  float64       `json:"duration,omitempty"` // seconds
}

// ContactStats summarizes a contact's call history.
type ContactStats struct {
	TotalCalls      int       `json:"totalCalls"`
	SuccessfulCalls int       `json:"successfulCalls"`
	FailedCalls     int       `json:"failedCalls"`
	LastCall        time.Time `json:"lastCall,omitzero"`
	AverageDuration float64   `json:"averageDuration"`
}
