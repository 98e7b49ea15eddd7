package httpapi

import (
	"time"

	"github.com/pricewatch/intake-core/internal/intake/dialogue"
	"github.com/pricewatch/intake-core/internal/intake/model"
)

// ================ Requests ================

type ActionRequest struct {
	Kind   model.ActionKind  `json:"kind" binding:"required"`
	Text   string            `json:"text"`
	Value  string            `json:"value"`
	Fields map[string]string `json:"fields"`
}

func (r ActionRequest) toAction() model.UserAction {
	return model.UserAction{Kind: r.Kind, Text: r.Text, Value: r.Value, Fields: r.Fields}
}

// SubmitIntakeRequest carries a complete submission. It has no phoneVerified
// or id field; both come from the server-side verification marker.
type SubmitIntakeRequest struct {
	ProductName    string           `json:"productName"`
	ProductDetails string           `json:"productDetails"`
	StoreKey       string           `json:"storeKey"`
	ProductURL     string           `json:"productUrl"`
	TargetType     model.TargetType `json:"targetType"`
	TargetValue    float64          `json:"targetValue"`
	TrackingMode   string           `json:"trackingMode"`
	Phone          string           `json:"phone" binding:"required"`
	ConsentGiven   bool             `json:"consentGiven"`
}

func (r SubmitIntakeRequest) toFields() model.Fields {
	return model.Fields{
		ProductName:    r.ProductName,
		ProductDetails: r.ProductDetails,
		StoreKey:       r.StoreKey,
		ProductURL:     r.ProductURL,
		TargetType:     r.TargetType,
		TargetValue:    r.TargetValue,
		TrackingMode:   r.TrackingMode,
		Phone:          r.Phone,
		ConsentGiven:   r.ConsentGiven,
	}
}

type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ================ Responses ================

type PromptResponse struct {
	Content      string               `json:"content"`
	QuickReplies []model.QuickReply   `json:"quickReplies,omitempty"`
	Inputs       []model.InputRequest `json:"inputs,omitempty"`
	DelayMs      int64                `json:"delayMs"`
}

type SessionResponse struct {
	SessionID string              `json:"sessionId"`
	Path      model.Path          `json:"path"`
	Stage     model.Stage         `json:"stage"`
	Step      int                 `json:"step"`
	Terminal  bool                `json:"terminal"`
	Fields    model.Fields        `json:"fields"`
	Prompts   []PromptResponse    `json:"prompts"`
	Events    []model.EventKind   `json:"events,omitempty"`
	Watch     *model.WatchRequest `json:"watch,omitempty"`
}

func newSessionResponse(res dialogue.Result) *SessionResponse {
	step, _ := res.State.Step()
	prompts := make([]PromptResponse, 0, len(res.Prompts))
	for _, p := range res.Prompts {
		prompts = append(prompts, PromptResponse{
			Content:      p.Content,
			QuickReplies: p.QuickReplies,
			Inputs:       p.Inputs,
			DelayMs:      p.Delay.Milliseconds(),
		})
	}
	return &SessionResponse{
		SessionID: res.State.ID,
		Path:      res.State.Path,
		Stage:     res.State.Stage,
		Step:      step,
		Terminal:  res.State.Terminal(),
		Fields:    res.State.Fields,
		Prompts:   prompts,
		Events:    res.Events,
		Watch:     res.Watch,
	}
}

type SendCodeResponse struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type VerifyCodeResponse struct {
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}
