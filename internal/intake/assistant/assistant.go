// Package assistant answers free-text questions that the intake form did not
// expect, using an eino graph over a chat model.
package assistant

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Config holds everything needed to compose the assistant graph.
type Config struct {
	ChatModel    einomodel.ToolCallingChatModel
	ModelName    string
	Prompt       model.AssistantPromptConfig
	Conversation model.ConversationConfig
	History      model.ChatHistoryStore
	MaxToolCalls int
}

// Assistant is the conversational-response capability used for unexpected
// free text.
type Assistant struct {
	runnable compose.Runnable[Query, *schema.Message]
}

// New builds and compiles the assistant graph.
func New(ctx context.Context, cfg Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("chat history store is nil")
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}

	tools := assistantTools()
	infos, err := toolInfos(ctx, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}
	chatModel, err := cfg.ChatModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools to assistant model: %w", err)
	}
	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().Str("tool_name", name).Msg("Unknown tool call ignored")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q}", name), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	mm := NewMessagesManager(cfg.History, cfg.Conversation)

	g := compose.NewGraph[Query, *schema.Message](
		compose.WithGenLocalState(func(ctx context.Context) *graphState {
			return &graphState{}
		}),
	)
	if err := g.AddLambdaNode(NodeInputConverter,
		newInputConverterNode(mm, cfg.Prompt),
		compose.WithStatePreHandler(newInputConverterPreHandler()),
	); err != nil {
		return nil, err
	}
	if err := g.AddChatModelNode(NodeChatModel, chatModel,
		compose.WithStatePreHandler(newChatModelPreHandler(cfg.MaxToolCalls)),
		compose.WithStatePostHandler(newChatModelPostHandler(mm, cfg.ModelName)),
	); err != nil {
		return nil, err
	}
	if err := g.AddToolsNode(NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(newToolExecutorPreHandler()),
	); err != nil {
		return nil, err
	}

	for _, edge := range [][2]string{
		{compose.START, NodeInputConverter},
		{NodeInputConverter, NodeChatModel},
		{NodeToolExecutor, NodeChatModel},
	} {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	branch := compose.NewGraphBranch(newToolExecutorCondition(), map[string]bool{
		NodeToolExecutor: true,
		compose.END:      true,
	})
	if err := g.AddBranch(NodeChatModel, branch); err != nil {
		return nil, fmt.Errorf("error adding tool branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName("intake_assistant"),
		compose.WithMaxRunSteps(10+cfg.MaxToolCalls*2),
	)
	if err != nil {
		return nil, fmt.Errorf("error compiling assistant graph: %w", err)
	}
	logx.Debug().Msg("Assistant graph compiled successfully")
	return &Assistant{runnable: runnable}, nil
}

// Respond answers text for the session. It returns an empty string when the
// model produced no content and a provider error when the call failed.
func (a *Assistant) Respond(ctx context.Context, sessionID string, stage model.Stage, text string) (string, error) {
	out, err := a.runnable.Invoke(ctx, Query{
		SessionID: sessionID,
		Text:      text,
		Stage:     stage,
	}, compose.WithCallbacks(newCallbacks()))
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("assistant invocation failed")
		return "", errx.Provider(err)
	}
	if out == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}
