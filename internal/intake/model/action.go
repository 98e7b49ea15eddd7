package model

// ActionKind distinguishes the three kinds of user input.
type ActionKind string

const (
	ActionText       ActionKind = "text"
	ActionQuickReply ActionKind = "quick_reply"
	ActionSubmit     ActionKind = "submit"
)

// UserAction is one input from the user.
type UserAction struct {
	Kind ActionKind `json:"kind"`
	// Text is set for free-text messages.
	Text string `json:"text,omitempty"`
	// Value is the opaque token of the selected quick reply.
	Value string `json:"value,omitempty"`
	// Fields maps field ids to raw strings for structured submissions.
	Fields map[string]string `json:"fields,omitempty"`
}

func TextAction(text string) UserAction {
	return UserAction{Kind: ActionText, Text: text}
}

func QuickReplyAction(value string) UserAction {
	return UserAction{Kind: ActionQuickReply, Value: value}
}

func SubmitAction(fields map[string]string) UserAction {
	return UserAction{Kind: ActionSubmit, Fields: fields}
}
