// Package dialogue drives the branching intake conversation: it turns the
// current state and one user action into the next state and the prompts to
// show, calling the verification gate and the finalizer where the flow
// requires them.
package dialogue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Responder answers free text the current stage did not expect.
type Responder interface {
	Respond(ctx context.Context, sessionID string, stage model.Stage, text string) (string, error)
}

// Verifier issues and checks one-time codes.
type Verifier interface {
	NormalizePhone(phone string) (string, error)
	Issue(ctx context.Context, phone string) (model.OneTimeCode, error)
	Verify(ctx context.Context, phone, code string) (model.VerificationResult, error)
}

// Finalizer persists a verified intake.
type Finalizer interface {
	Finalize(ctx context.Context, fields model.Fields) (*model.WatchRequest, error)
}

// Result is the outcome of one Advance.
type Result struct {
	State   model.ConversationState `json:"state"`
	Prompts []model.ScheduledPrompt `json:"prompts"`
	// Events lists the session notifications this advance produced.
	Events []model.EventKind `json:"events,omitempty"`
	// Watch is set when this advance created the watch.
	Watch *model.WatchRequest `json:"watch,omitempty"`
}

type Orchestrator struct {
	gate      Verifier
	finalizer Finalizer
	responder Responder
	cfg       model.DialogueConfig
	newID     func() string
	log       zerolog.Logger
}

type Option func(*Orchestrator)

// WithResponder enables assistant answers for unexpected free text.
func WithResponder(r Responder) Option {
	return func(o *Orchestrator) { o.responder = r }
}

// WithSubmissionIDs replaces the generator of submission ids.
func WithSubmissionIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func New(gate Verifier, finalizer Finalizer, cfg model.DialogueConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:      gate,
		finalizer: finalizer,
		cfg:       cfg,
		newID:     newSubmissionID,
		log:       logx.Component("dialogue"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start returns the opening prompts of a new conversation.
func (o *Orchestrator) Start(id string) Result {
	s := model.NewConversation(id)
	return Result{State: s, Prompts: pace(o.cfg, stagePrompts(s))}
}

// Advance applies one user action. The input state is never modified; on
// error the returned Result carries the state to keep (the input state for
// validation, transition and gate failures) and any re-prompt to show.
func (o *Orchestrator) Advance(ctx context.Context, state model.ConversationState, action model.UserAction) (Result, error) {
	switch action.Kind {
	case model.ActionText, model.ActionQuickReply, model.ActionSubmit:
	default:
		return Result{State: state}, errx.InvalidTransition(fmt.Sprintf("unknown action kind %q", action.Kind))
	}
	if _, ok := state.Step(); !ok {
		return Result{State: state}, errx.InvalidTransition(fmt.Sprintf("stage %q does not belong to path %q", state.Stage, state.Path))
	}

	handle, ok := handlers[state.Stage]
	if !ok {
		return Result{State: state}, errx.InvalidTransition(fmt.Sprintf("no handler for stage %q", state.Stage))
	}
	res, err := handle(ctx, o, state, action)
	if err != nil && errx.IsKind(err, errx.KindInvalidTransition) {
		o.log.Warn().
			Str("session_id", state.ID).
			Str("stage", string(state.Stage)).
			Str("action", string(action.Kind)).
			Msg("action rejected for stage")
		return Result{State: state}, err
	}
	res.Prompts = pace(o.cfg, res.Prompts)

	if res.State.Stage != state.Stage {
		o.log.Debug().
			Str("session_id", state.ID).
			Str("from", string(state.Stage)).
			Str("to", string(res.State.Stage)).
			Msg("stage advanced")
	}
	return res, err
}

// advanceTo moves s to its next stage and asks that stage's question after
// any lead prompts.
func advanceTo(s model.ConversationState, lead ...model.ScheduledPrompt) Result {
	next, ok := s.NextStage()
	if ok {
		s.Stage = next
	}
	return Result{State: s, Prompts: append(lead, stagePrompts(s)...)}
}

// reprompt keeps s and repeats the current question after a message.
func reprompt(s model.ConversationState, err error, message string) (Result, error) {
	prompts := append([]model.ScheduledPrompt{say(message)}, stagePrompts(s)...)
	return Result{State: s, Prompts: prompts}, err
}

// invalid rejects an action the stage does not accept.
func invalid(s model.ConversationState, a model.UserAction) (Result, error) {
	return Result{State: s}, errx.InvalidTransition(fmt.Sprintf("%s action not accepted at stage %q", a.Kind, s.Stage))
}

// fallback forwards unexpected free text to the responder and keeps the
// stage. The current question's controls are re-attached to the answer.
func (o *Orchestrator) fallback(ctx context.Context, s model.ConversationState, text string) (Result, error) {
	answer := ""
	if o.responder != nil {
		var err error
		answer, err = o.responder.Respond(ctx, s.ID, s.Stage, text)
		if err != nil {
			o.log.Warn().Err(err).Str("session_id", s.ID).Msg("assistant unavailable, using fallback text")
			answer = ""
		}
	}
	if answer == "" {
		answer = noAnswerText
	}

	p := say(answer)
	if current := stagePrompts(s); len(current) > 0 {
		last := current[len(current)-1]
		p.QuickReplies = last.QuickReplies
		p.Inputs = last.Inputs
	}
	return Result{State: s, Prompts: []model.ScheduledPrompt{p}}, nil
}
