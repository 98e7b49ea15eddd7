package model

import "time"

const (
	// CodeTTL is the lifetime of an issued one-time code.
	CodeTTL = 5 * time.Minute
	// CodeLength is the number of digits of a one-time code.
	CodeLength = 6
	// DevelopmentCode is always accepted when running in development mode.
	DevelopmentCode = "111111"
)

// OneTimeCode binds a short numeric secret to a phone number.
type OneTimeCode struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the code can no longer be used at the given time.
func (c OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// VerificationResult is the outcome of a code check.
type VerificationResult int

const (
	Rejected VerificationResult = iota
	Verified
)

func (r VerificationResult) String() string {
	if r == Verified {
		return "verified"
	}
	return "rejected"
}
