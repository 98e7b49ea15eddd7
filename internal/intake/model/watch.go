package model

import (
	"time"

	"github.com/google/uuid"
)

// TargetType is the price condition strategy of a watch.
type TargetType string

const (
	TargetPrice TargetType = "target_price"
	PercentDrop TargetType = "percent_drop"
)

// WatchRequest is the persisted price-watch registration.
type WatchRequest struct {
	ID            uuid.UUID  `json:"id"`
	ProductName   string     `json:"productName"`
	StoreKey      string     `json:"storeKey"`
	ProductURL    string     `json:"productUrl"`
	TargetType    TargetType `json:"targetType"`
	TargetValue   float64    `json:"targetValue"`
	TrackingMode  string     `json:"trackingMode,omitempty"`
	Phone         string     `json:"phone"`
	ConsentGiven  bool       `json:"consentGiven"`
	IsActive      bool       `json:"isActive"`
	LastPrice     *float64   `json:"lastPrice"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
