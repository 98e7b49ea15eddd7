package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const (
	NodeInputConverter = "input_converter"
	NodeChatModel      = "chat_model"
	NodeToolExecutor   = "tool_executor"

	DefaultMaxToolCalls = 3
)

// graphState is the eino local state of one Respond call. It is only touched
// inside state handlers, which eino serializes.
type graphState struct {
	SessionID            string
	History              []*schema.Message
	ToolCallCount        int
	ToolCallLimitReached bool
	TotalCostUSD         float64
}

// Query is the graph input.
type Query struct {
	SessionID string
	Text      string
	Stage     model.Stage
}

func newInputConverterPreHandler() func(context.Context, Query, *graphState) (Query, error) {
	return func(ctx context.Context, in Query, s *graphState) (Query, error) {
		s.SessionID = in.SessionID
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.TotalCostUSD = 0
		return in, nil
	}
}

func newInputConverterNode(mm *MessagesManager, promptCfg model.AssistantPromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in Query) ([]*schema.Message, error) {
		if err := mm.SaveQuestion(ctx, in.SessionID, in.Text); err != nil {
			return nil, fmt.Errorf("save question: %w", err)
		}
		systemPrompt, err := RenderSystem(ctx, promptCfg, in.Stage)
		if err != nil {
			return nil, err
		}
		messages, err := mm.BuildContext(ctx, in.SessionID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build assistant context: %w", err)
		}
		return messages, nil
	})
}

func newChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *graphState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *graphState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)
		if !state.ToolCallLimitReached && state.ToolCallCount >= maxToolCalls {
			state.ToolCallLimitReached = true
			state.History = append(state.History, schema.SystemMessage(
				"You have used all available tool calls. Answer with the information you already have."))
		}
		return state.History, nil
	}
}

func newChatModelPostHandler(mm *MessagesManager, modelName string) func(context.Context, *schema.Message, *graphState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *graphState) (*schema.Message, error) {
		if out == nil {
			return out, nil
		}
		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
			state.TotalCostUSD += totalC
			logx.Debug().
				Str("session_id", state.SessionID).
				Str("node", NodeChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("input_cost_usd", inC).
				Float64("output_cost_usd", outC).
				Float64("total_cost_usd", state.TotalCostUSD).
				Msg("LLM usage")
		}

		// some providers omit tool call ids
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", state.ToolCallCount, i)
			}
		}
		state.History = append(state.History, out)

		final := len(out.ToolCalls) == 0 || state.ToolCallLimitReached
		if out.Role == schema.Assistant && final && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.SessionID, out.Content); err != nil {
				logx.Error().Err(err).Str("session_id", state.SessionID).Msg("Error saving assistant response")
			}
		}
		return out, nil
	}
}

func newToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, in *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *graphState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})
		if limitReached || len(in.ToolCalls) == 0 {
			return compose.END, nil
		}
		return NodeToolExecutor, nil
	}
}

func newToolExecutorPreHandler() func(context.Context, *schema.Message, *graphState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *graphState) (*schema.Message, error) {
		state.ToolCallCount++
		logx.Debug().
			Str("session_id", state.SessionID).
			Int("tool_call_count", state.ToolCallCount).
			Msg("Tool execution attempt")
		return in, nil
	}
}
