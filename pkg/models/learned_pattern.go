package models

import "time"

// LearnedPattern is a cross-session record of a human-confirmed mapping.
// It biases initial confidence for the same signature in later sessions.
type LearnedPattern struct {
	Signature      string    `json:"signature"`
	TargetField    string    `json:"target_field"`
	TimesConfirmed int       `json:"times_confirmed"`
	LastUsedAt     time.Time `json:"last_used_at"`
	CreatedAt      time.Time `json:"created_at"`
}
