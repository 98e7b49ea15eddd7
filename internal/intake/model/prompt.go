package model

import "time"

// InputType tells the rendering layer which control to show for an inline input.
type InputType string

const (
	InputText     InputType = "text"
	InputURL      InputType = "url"
	InputNumber   InputType = "number"
	InputPhone    InputType = "phone"
	InputCode     InputType = "code"
	InputCheckbox InputType = "checkbox"
)

type QuickReply struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type InputRequest struct {
	FieldID     string    `json:"fieldId"`
	Type        InputType `json:"type"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// ScheduledPrompt is one outgoing assistant message. Delay is measured from
// the presentation of the previous prompt of the same batch (or from receipt
// of the batch for the first one); the caller owns the actual waiting.
type ScheduledPrompt struct {
	Content      string         `json:"content"`
	QuickReplies []QuickReply   `json:"quickReplies,omitempty"`
	Inputs       []InputRequest `json:"inputs,omitempty"`
	Delay        time.Duration  `json:"delay"`
}
