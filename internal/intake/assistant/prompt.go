package assistant

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/pricewatch/intake-core/internal/intake/model"
)

//go:embed template/assistant_prompt.txt
var coreSystemPrompt string

var stageHints = map[model.Stage]string{
	model.StageWelcome:        "choosing whether they already have a product in mind",
	model.StageProductName:    "entering the product name",
	model.StageProductDetails: "entering the store and product link",
	model.StageTargetStrategy: "choosing between a target price and a percentage drop",
	model.StageTargetValue:    "entering the target value",
	model.StageTiming:         "choosing when tracking should start",
	model.StageContact:        "entering a phone number for alerts",
	model.StageAwaitingCode:   "entering the SMS verification code",
	model.StageSubmitting:     "waiting for the watch to be saved",
	model.StageCategory:       "describing the product category they need",
	model.StageRequirements:   "describing their requirements",
	model.StageBudget:         "entering their budget",
}

// RenderSystem renders the assistant system prompt through the eino prompt
// component so prompt callbacks fire.
func RenderSystem(ctx context.Context, config model.AssistantPromptConfig, stage model.Stage) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(config.Language))
	switch lang {
	case "", "en", "eng":
		lang = "English"
	case "he", "heb":
		lang = "Hebrew"
	}
	hint, ok := stageHints[stage]
	if !ok {
		hint = "finishing up"
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"BusinessName": config.BusinessName,
		"Language":     lang,
		"StageHint":    hint,
		"StoresTool":   ToolListStores,
		"LinkTool":     ToolCheckStoreURL,
	})
	if err != nil {
		return "", fmt.Errorf("assistant prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("assistant prompt render: empty result")
	}
	return msgs[0].Content, nil
}
