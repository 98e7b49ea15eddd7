package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL     time.Duration `envconfig:"CONVERSATION_TTL" default:"30m"`
	History struct {
		MaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"10"`
	}
}

type AssistantModelConfig struct {
	Model          string  `envconfig:"ASSISTANT_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens      int     `envconfig:"ASSISTANT_MAX_TOKENS" default:"800"`
	Temperature    float32 `envconfig:"ASSISTANT_TEMPERATURE" default:"0.4"`
	ThinkingBudget int32   `envconfig:"ASSISTANT_THINKING_BUDGET" default:"0"`
}

type AssistantPromptConfig struct {
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"PriceWatch"`
	Language     string `envconfig:"PROMPT_LANGUAGE" default:"en"`
}

type VerificationConfig struct {
	IssueLimit        int           `envconfig:"VERIFICATION_ISSUE_LIMIT" default:"3"`
	VerifyLimit       int           `envconfig:"VERIFICATION_VERIFY_LIMIT" default:"5"`
	Window            time.Duration `envconfig:"VERIFICATION_WINDOW" default:"5m"`
	VerifiedMarkerTTL time.Duration `envconfig:"VERIFICATION_MARKER_TTL" default:"30m"`
	DefaultRegion     string        `envconfig:"VERIFICATION_DEFAULT_REGION" default:"IL"`
}

type DialogueConfig struct {
	TypingDelay  time.Duration `envconfig:"DIALOGUE_TYPING_DELAY" default:"500ms"`
	PerCharDelay time.Duration `envconfig:"DIALOGUE_PER_CHAR_DELAY" default:"12ms"`
	MaxDelay     time.Duration `envconfig:"DIALOGUE_MAX_DELAY" default:"2500ms"`
}
