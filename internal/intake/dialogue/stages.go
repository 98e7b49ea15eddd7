package dialogue

import (
	"context"
	"strings"

	"github.com/google/uuid"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

type stageHandler func(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error)

var handlers = map[model.Stage]stageHandler{
	model.StageWelcome: handleWelcome,

	model.StageProductName:    handleProductName,
	model.StageProductDetails: handleProductDetails,
	model.StageTargetStrategy: handleTargetStrategy,
	model.StageTargetValue:    handleTargetValue,
	model.StageTiming:         handleTiming,
	model.StageContact:        handleContact,
	model.StageAwaitingCode:   handleAwaitingCode,
	model.StageSubmitting:     handleSubmitting,
	model.StageWatchCreated:   handleClosed,

	model.StageCategory:     handleCategory,
	model.StageRequirements: handleRequirements,
	model.StageBudget:       handleBudget,
	model.StageHelpClosed:   handleClosed,
}

func newSubmissionID() string {
	return uuid.NewString()
}

// ================ welcome ================

func handleWelcome(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	var choice string
	switch a.Kind {
	case model.ActionQuickReply:
		choice = a.Value
	case model.ActionText:
		v, ok := matchChoice(a.Text, pathChoices)
		if !ok {
			return o.fallback(ctx, s, a.Text)
		}
		choice = v
	default:
		return invalid(s, a)
	}

	var path model.Path
	switch choice {
	case ReplyHasProduct:
		path = model.PathHasProduct
	case ReplyNeedsHelp:
		path = model.PathNeedsHelp
	default:
		return invalid(s, a)
	}

	first, _ := path.FirstStage()
	s.Path = path
	s.Stage = first
	return Result{
		State:   s,
		Prompts: stagePrompts(s),
		Events:  []model.EventKind{model.EventPathChosen},
	}, nil
}

// ================ has-product ================

func handleProductName(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	raw, ok := textOrField(a, model.FieldProductName)
	if !ok {
		return invalid(s, a)
	}
	name, err := parseText(model.FieldProductName, raw)
	if err != nil {
		return reprompt(s, err, "I didn't catch the product name.")
	}
	s.Fields.ProductName = name
	return advanceTo(s), nil
}

func handleProductDetails(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	fields := a.Fields
	switch a.Kind {
	case model.ActionSubmit:
		if !onlyFields(fields, model.FieldProductURL, model.FieldStoreKey, model.FieldProductDetails) {
			return invalid(s, a)
		}
	case model.ActionText:
		if _, err := parseProductURL(a.Text); err != nil {
			return o.fallback(ctx, s, a.Text)
		}
		fields = map[string]string{model.FieldProductURL: a.Text}
	default:
		return invalid(s, a)
	}

	productURL, err := parseProductURL(fields[model.FieldProductURL])
	if err != nil {
		return reprompt(s, err, "I need a link to the product page.")
	}
	storeKey := strings.ToLower(strings.TrimSpace(fields[model.FieldStoreKey]))
	if storeKey == "" {
		if store, ok := model.StoreForURL(productURL); ok {
			storeKey = store.Key
		}
	}
	if storeKey == "" {
		return reprompt(s, fieldError(model.FieldStoreKey, "Which store is this from?"), "I don't recognise that store.")
	}

	s.Fields.ProductURL = productURL
	s.Fields.StoreKey = storeKey
	s.Fields.ProductDetails = strings.TrimSpace(fields[model.FieldProductDetails])
	return advanceTo(s), nil
}

func handleTargetStrategy(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	choice, ok, res, err := choose(ctx, o, s, a, targetChoices)
	if !ok {
		return res, err
	}
	s.Fields.TargetType = model.TargetType(choice)
	// a changed strategy invalidates any earlier value
	s.Fields.TargetValue = 0
	return advanceTo(s), nil
}

func handleTargetValue(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	raw, ok := textOrField(a, model.FieldTargetValue)
	if !ok {
		return invalid(s, a)
	}
	v, err := parseAmount(model.FieldTargetValue, raw)
	if err != nil {
		if a.Kind == model.ActionText {
			return o.fallback(ctx, s, a.Text)
		}
		return reprompt(s, err, "That doesn't look like a valid target.")
	}
	if s.Fields.TargetType == model.PercentDrop && v > 100 {
		return reprompt(s, fieldError(model.FieldTargetValue, "A percentage drop cannot exceed 100."), "That's more than 100%.")
	}
	s.Fields.TargetValue = v
	return advanceTo(s), nil
}

func handleTiming(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	choice, ok, res, err := choose(ctx, o, s, a, timingChoices)
	if !ok {
		return res, err
	}
	s.Fields.TrackingMode = choice
	return advanceTo(s), nil
}

func handleContact(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	switch a.Kind {
	case model.ActionText:
		return o.fallback(ctx, s, a.Text)
	case model.ActionSubmit:
		if !onlyFields(a.Fields, model.FieldPhone, model.FieldConsent) {
			return invalid(s, a)
		}
	default:
		return invalid(s, a)
	}

	phone, err := o.gate.NormalizePhone(a.Fields[model.FieldPhone])
	if err != nil {
		return reprompt(s, err, "Please check the phone number.")
	}
	if !parseConsent(a.Fields[model.FieldConsent]) {
		return reprompt(s, fieldError(model.FieldConsent, "You need to agree to receive alerts by SMS."), "We can only text you with your permission.")
	}

	if _, err := o.gate.Issue(ctx, phone); err != nil {
		return gateFailure(s, err)
	}

	s.Fields.Phone = phone
	s.Fields.ConsentGiven = true
	s.Fields.PhoneVerified = false
	res := advanceTo(s)
	res.Events = []model.EventKind{model.EventCodeIssued}
	return res, nil
}

func handleAwaitingCode(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	var code string
	switch a.Kind {
	case model.ActionQuickReply:
		if a.Value != ReplyResend {
			return invalid(s, a)
		}
		if _, err := o.gate.Issue(ctx, s.Fields.Phone); err != nil {
			return gateFailure(s, err)
		}
		return Result{
			State:   s,
			Prompts: append([]model.ScheduledPrompt{say("A new code is on its way.")}, stagePrompts(s)...),
			Events:  []model.EventKind{model.EventCodeIssued},
		}, nil
	case model.ActionText:
		if !looksLikeCode(a.Text) {
			return o.fallback(ctx, s, a.Text)
		}
		code = strings.TrimSpace(a.Text)
	case model.ActionSubmit:
		if !onlyFields(a.Fields, model.FieldCode) {
			return invalid(s, a)
		}
		code = strings.TrimSpace(a.Fields[model.FieldCode])
	default:
		return invalid(s, a)
	}

	result, err := o.gate.Verify(ctx, s.Fields.Phone, code)
	if err != nil {
		return gateFailure(s, err)
	}
	if result != model.Verified {
		return reprompt(s, errx.VerificationRejected(), "That code didn't work. Check the SMS and try again, or ask for a new code.")
	}

	s.Fields.PhoneVerified = true
	if s.Fields.SubmissionID == "" {
		s.Fields.SubmissionID = o.newID()
	}
	next, _ := s.NextStage()
	s.Stage = next

	res, err := o.submit(ctx, s)
	res.Events = append([]model.EventKind{model.EventPhoneVerified}, res.Events...)
	return res, err
}

func handleSubmitting(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	switch a.Kind {
	case model.ActionQuickReply:
		if a.Value != ReplyRetry {
			return invalid(s, a)
		}
		return o.submit(ctx, s)
	case model.ActionText:
		return o.fallback(ctx, s, a.Text)
	}
	return invalid(s, a)
}

// submit finalizes a verified intake. On failure the state stays at the
// submitting stage so the caller can retry with the same submission id.
func (o *Orchestrator) submit(ctx context.Context, s model.ConversationState) (Result, error) {
	watch, err := o.finalizer.Finalize(ctx, s.Fields)
	if err != nil {
		o.log.Error().Err(err).Str("session_id", s.ID).Msg("finalize failed")
		return Result{State: s, Prompts: stagePrompts(s)}, err
	}
	s.Stage = model.StageWatchCreated
	o.log.Info().
		Str("session_id", s.ID).
		Str("watch_id", watch.ID.String()).
		Str("phone", logx.MaskPhone(watch.Phone)).
		Msg("intake completed")
	return Result{
		State:   s,
		Prompts: stagePrompts(s),
		Events:  []model.EventKind{model.EventWatchCreated, model.EventFlowClosed},
		Watch:   watch,
	}, nil
}

// ================ needs-help ================

func handleCategory(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	raw, ok := textOrField(a, model.FieldCategory)
	if !ok {
		return invalid(s, a)
	}
	v, err := parseText(model.FieldCategory, raw)
	if err != nil {
		return reprompt(s, err, "Tell me the kind of product you need.")
	}
	s.Fields.Category = v
	return advanceTo(s), nil
}

func handleRequirements(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	raw, ok := textOrField(a, model.FieldRequirements)
	if !ok {
		return invalid(s, a)
	}
	v, err := parseText(model.FieldRequirements, raw)
	if err != nil {
		return reprompt(s, err, "Tell me what matters to you.")
	}
	s.Fields.Requirements = v
	return advanceTo(s), nil
}

func handleBudget(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	raw, ok := textOrField(a, model.FieldBudget)
	if !ok {
		return invalid(s, a)
	}
	v, err := parseAmount(model.FieldBudget, raw)
	if err != nil {
		if a.Kind == model.ActionText {
			return o.fallback(ctx, s, a.Text)
		}
		return reprompt(s, err, "That doesn't look like a budget.")
	}
	s.Fields.Budget = v
	res := advanceTo(s)
	res.Events = []model.EventKind{model.EventFlowClosed}
	return res, nil
}

// ================ shared ================

func handleClosed(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction) (Result, error) {
	if a.Kind == model.ActionText {
		return o.fallback(ctx, s, a.Text)
	}
	return invalid(s, a)
}

// textOrField extracts the single value of a text-collecting stage.
func textOrField(a model.UserAction, field string) (string, bool) {
	switch a.Kind {
	case model.ActionText:
		return a.Text, true
	case model.ActionSubmit:
		if !onlyFields(a.Fields, field) {
			return "", false
		}
		return a.Fields[field], true
	}
	return "", false
}

// choose resolves a quick reply (or matching free text) against choices.
// When ok is false the returned Result and error are final.
func choose(ctx context.Context, o *Orchestrator, s model.ConversationState, a model.UserAction, choices []model.QuickReply) (string, bool, Result, error) {
	switch a.Kind {
	case model.ActionQuickReply:
		for _, c := range choices {
			if c.Value == a.Value {
				return c.Value, true, Result{}, nil
			}
		}
	case model.ActionText:
		if v, ok := matchChoice(a.Text, choices); ok {
			return v, true, Result{}, nil
		}
		res, err := o.fallback(ctx, s, a.Text)
		return "", false, res, err
	}
	res, err := invalid(s, a)
	return "", false, res, err
}

// gateFailure keeps the state and explains a verification gate error.
func gateFailure(s model.ConversationState, err error) (Result, error) {
	msg := "Something went wrong sending the code. Please try again."
	switch errx.KindOf(err) {
	case errx.KindValidation:
		msg = "Please check the phone number."
	case errx.KindRateLimited:
		msg = "Too many attempts. Please wait a few minutes and try again."
	}
	return reprompt(s, err, msg)
}
