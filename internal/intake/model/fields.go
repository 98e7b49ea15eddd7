package model

// Fields accumulates everything the intake flow has collected so far.
// It is a plain value: copying a ConversationState copies its fields, which
// keeps an unsuccessful advance from touching the caller's state.
type Fields struct {
	// has-product branch
	ProductName    string     `json:"productName,omitempty"`
	ProductDetails string     `json:"productDetails,omitempty"`
	StoreKey       string     `json:"storeKey,omitempty"`
	ProductURL     string     `json:"productUrl,omitempty"`
	TargetType     TargetType `json:"targetType,omitempty"`
	TargetValue    float64    `json:"targetValue,omitempty"`
	TrackingMode   string     `json:"trackingMode,omitempty"`

	// needs-help branch
	Category     string  `json:"category,omitempty"`
	Requirements string  `json:"requirements,omitempty"`
	Budget       float64 `json:"budget,omitempty"`

	// contact
	Phone        string `json:"phone,omitempty"`
	ConsentGiven bool   `json:"consentGiven"`
	// PhoneVerified is only ever set after the verification gate accepted a code.
	PhoneVerified bool `json:"phoneVerified"`

	// SubmissionID is fixed when the flow first reaches submission and is reused
	// as the watch id, so a retried submission cannot create a second watch.
	SubmissionID string `json:"submissionId,omitempty"`
}

// Field identifiers used by inline inputs and structured submissions.
const (
	FieldProductName    = "productName"
	FieldProductDetails = "productDetails"
	FieldStoreKey       = "storeKey"
	FieldProductURL     = "productUrl"
	FieldTargetValue    = "targetValue"
	FieldCategory       = "category"
	FieldRequirements   = "requirements"
	FieldBudget         = "budget"
	FieldPhone          = "phone"
	FieldConsent        = "consentGiven"
	FieldCode           = "code"
)

// Tracking modes offered at the timing stage.
const (
	TrackNow    = "track_now"
	WaitForSale = "wait_for_sale"
)
