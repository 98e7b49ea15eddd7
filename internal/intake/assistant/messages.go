package assistant

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/pricewatch/intake-core/internal/intake/model"
)

const defaultMaxTurns = 10

type MessagesManager struct {
	history  model.ChatHistoryStore
	maxTurns int
}

func NewMessagesManager(history model.ChatHistoryStore, config model.ConversationConfig) *MessagesManager {
	maxTurns := config.History.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &MessagesManager{
		history:  history,
		maxTurns: maxTurns,
	}
}

func (mm *MessagesManager) SaveQuestion(ctx context.Context, sessionID, text string) error {
	return mm.history.Append(ctx, sessionID, schema.UserMessage(text))
}

// BuildContext returns the system prompt followed by the most recent turns.
func (mm *MessagesManager) BuildContext(ctx context.Context, sessionID, systemPrompt string) ([]*schema.Message, error) {
	recent, err := mm.history.Recent(ctx, sessionID, mm.maxTurns)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	for _, m := range recent {
		if m == nil || m.Content == "" {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (mm *MessagesManager) SaveResponse(ctx context.Context, sessionID, content string) error {
	return mm.history.Append(ctx, sessionID, schema.AssistantMessage(content, nil))
}
