package dialogue

import (
	"fmt"
	"strconv"

	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Quick reply values.
const (
	ReplyHasProduct  = "has_product"
	ReplyNeedsHelp   = "needs_help"
	ReplyTargetPrice = string(model.TargetPrice)
	ReplyPercentDrop = string(model.PercentDrop)
	ReplyTrackNow    = model.TrackNow
	ReplyWaitForSale = model.WaitForSale
	ReplyResend      = "resend"
	ReplyRetry       = "retry"
)

var (
	pathChoices = []model.QuickReply{
		{Label: "I have a product in mind", Value: ReplyHasProduct},
		{Label: "Help me find one", Value: ReplyNeedsHelp},
	}
	targetChoices = []model.QuickReply{
		{Label: "Alert me at a price", Value: ReplyTargetPrice},
		{Label: "Alert me on a % drop", Value: ReplyPercentDrop},
	}
	timingChoices = []model.QuickReply{
		{Label: "Start tracking now", Value: ReplyTrackNow},
		{Label: "Wait for the next sale", Value: ReplyWaitForSale},
	}
	codeChoices  = []model.QuickReply{{Label: "Send a new code", Value: ReplyResend}}
	retryChoices = []model.QuickReply{{Label: "Try again", Value: ReplyRetry}}
)

const noAnswerText = "Sorry, I can't answer that right now."

func say(content string) model.ScheduledPrompt {
	return model.ScheduledPrompt{Content: content}
}

// stagePrompts returns the prompts that ask the question of the current stage.
func stagePrompts(s model.ConversationState) []model.ScheduledPrompt {
	f := s.Fields
	switch s.Stage {
	case model.StageWelcome:
		return []model.ScheduledPrompt{
			say("Hi! I can watch a product's price and text you when it drops."),
			{Content: "Do you already know which product you want to watch?", QuickReplies: pathChoices},
		}
	case model.StageProductName:
		return []model.ScheduledPrompt{{
			Content: "Great! What's the name of the product?",
			Inputs:  []model.InputRequest{{FieldID: model.FieldProductName, Type: model.InputText, Placeholder: "e.g. Sony WH-1000XM5"}},
		}}
	case model.StageProductDetails:
		return []model.ScheduledPrompt{{
			Content: "Where did you see it? Paste the product link and add any details like color or size.",
			Inputs: []model.InputRequest{
				{FieldID: model.FieldProductURL, Type: model.InputURL, Placeholder: "https://"},
				{FieldID: model.FieldStoreKey, Type: model.InputText, Placeholder: "Store (optional if the link is from a known store)"},
				{FieldID: model.FieldProductDetails, Type: model.InputText, Placeholder: "Color, size, model..."},
			},
		}}
	case model.StageTargetStrategy:
		return []model.ScheduledPrompt{{Content: "When should we alert you?", QuickReplies: targetChoices}}
	case model.StageTargetValue:
		if f.TargetType == model.PercentDrop {
			return []model.ScheduledPrompt{{
				Content: "By how many percent should the price drop?",
				Inputs:  []model.InputRequest{{FieldID: model.FieldTargetValue, Type: model.InputNumber, Placeholder: "e.g. 15"}},
			}}
		}
		return []model.ScheduledPrompt{{
			Content: "What price would you buy it at?",
			Inputs:  []model.InputRequest{{FieldID: model.FieldTargetValue, Type: model.InputNumber, Placeholder: "e.g. 999"}},
		}}
	case model.StageTiming:
		return []model.ScheduledPrompt{{Content: "Should we start tracking now or wait for the next sale?", QuickReplies: timingChoices}}
	case model.StageContact:
		return []model.ScheduledPrompt{{
			Content: "Last step: where should we text you? We'll send a code to confirm the number.",
			Inputs: []model.InputRequest{
				{FieldID: model.FieldPhone, Type: model.InputPhone, Placeholder: "+972 50 123 4567"},
				{FieldID: model.FieldConsent, Type: model.InputCheckbox, Placeholder: "I agree to receive price alerts by SMS"},
			},
		}}
	case model.StageAwaitingCode:
		return []model.ScheduledPrompt{{
			Content:      fmt.Sprintf("We sent a %d-digit code to %s. Enter it below.", model.CodeLength, logx.MaskPhone(f.Phone)),
			Inputs:       []model.InputRequest{{FieldID: model.FieldCode, Type: model.InputCode, Placeholder: "123456"}},
			QuickReplies: codeChoices,
		}}
	case model.StageSubmitting:
		return []model.ScheduledPrompt{{Content: "We couldn't save your watch just now.", QuickReplies: retryChoices}}
	case model.StageWatchCreated:
		return []model.ScheduledPrompt{
			say(fmt.Sprintf("You're all set! We're watching %s for you.", f.ProductName)),
			say(fmt.Sprintf("We'll text you when %s.", describeTarget(f))),
		}
	case model.StageCategory:
		return []model.ScheduledPrompt{{
			Content: "Happy to help! What kind of product are you looking for?",
			Inputs:  []model.InputRequest{{FieldID: model.FieldCategory, Type: model.InputText, Placeholder: "e.g. noise-cancelling headphones"}},
		}}
	case model.StageRequirements:
		return []model.ScheduledPrompt{{
			Content: "What matters most to you? Features, brand, size...",
			Inputs:  []model.InputRequest{{FieldID: model.FieldRequirements, Type: model.InputText}},
		}}
	case model.StageBudget:
		return []model.ScheduledPrompt{{
			Content: "And what's your budget?",
			Inputs:  []model.InputRequest{{FieldID: model.FieldBudget, Type: model.InputNumber, Placeholder: "e.g. 800"}},
		}}
	case model.StageHelpClosed:
		return []model.ScheduledPrompt{
			say("Thanks! That gives us a good picture of what you need."),
			say("Once you've picked a product, come back and we'll watch its price for you."),
		}
	}
	return nil
}

func describeTarget(f model.Fields) string {
	v := strconv.FormatFloat(f.TargetValue, 'f', -1, 64)
	if f.TargetType == model.PercentDrop {
		return "its price drops by " + v + "%"
	}
	return "its price reaches " + v + " or less"
}
