// Package session runs intake conversations against persisted state and
// exposes the standalone verification and submission operations.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/dialogue"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Publisher receives session notifications.
type Publisher interface {
	Publish(ev model.SessionEvent)
}

type Config struct {
	VerifiedMarkerTTL time.Duration
}

type Service struct {
	sessions     model.SessionStore
	orchestrator *dialogue.Orchestrator
	gate         dialogue.Verifier
	finalizer    dialogue.Finalizer
	verified     model.VerifiedPhoneStore
	publisher    Publisher
	cfg          Config
	now          func() time.Time
	log          zerolog.Logger
}

type Dependencies struct {
	Sessions     model.SessionStore
	Orchestrator *dialogue.Orchestrator
	Gate         dialogue.Verifier
	Finalizer    dialogue.Finalizer
	Verified     model.VerifiedPhoneStore
	// Publisher is optional.
	Publisher Publisher
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.VerifiedMarkerTTL <= 0 {
		cfg.VerifiedMarkerTTL = 30 * time.Minute
	}
	return &Service{
		sessions:     deps.Sessions,
		orchestrator: deps.Orchestrator,
		gate:         deps.Gate,
		finalizer:    deps.Finalizer,
		verified:     deps.Verified,
		publisher:    deps.Publisher,
		cfg:          cfg,
		now:          time.Now,
		log:          logx.Component("session"),
	}
}

// Start opens a new conversation and persists its initial state.
func (s *Service) Start(ctx context.Context) (dialogue.Result, error) {
	res := s.orchestrator.Start(uuid.NewString())
	if err := s.sessions.Save(ctx, res.State); err != nil {
		return dialogue.Result{}, err
	}
	s.log.Info().Str("session_id", res.State.ID).Msg("session started")
	return res, nil
}

// State returns the persisted state of a session.
func (s *Service) State(ctx context.Context, id string) (model.ConversationState, error) {
	return s.sessions.Load(ctx, id)
}

// HandleAction advances a session by one user action. The state returned by
// the orchestrator is saved even when the advance failed, so a failed
// submission stays retryable; rejected transitions leave storage untouched.
func (s *Service) HandleAction(ctx context.Context, id string, action model.UserAction) (dialogue.Result, error) {
	state, err := s.sessions.Load(ctx, id)
	if err != nil {
		return dialogue.Result{}, err
	}

	res, advErr := s.orchestrator.Advance(ctx, state, action)
	if errx.IsKind(advErr, errx.KindInvalidTransition) {
		return res, advErr
	}
	if err := s.sessions.Save(ctx, res.State); err != nil {
		return dialogue.Result{}, err
	}
	s.publish(res)
	return res, advErr
}

func (s *Service) publish(res dialogue.Result) {
	if s.publisher == nil || len(res.Events) == 0 {
		return
	}
	at := s.now().UTC()
	for _, kind := range res.Events {
		ev := model.SessionEvent{
			SessionID: res.State.ID,
			Kind:      kind,
			Stage:     res.State.Stage,
			At:        at,
		}
		switch kind {
		case model.EventPathChosen:
			ev.Data = map[string]any{"path": res.State.Path}
		case model.EventCodeIssued, model.EventPhoneVerified:
			ev.Data = map[string]any{"phone": logx.MaskPhone(res.State.Fields.Phone)}
		case model.EventWatchCreated:
			if res.Watch != nil {
				ev.Data = map[string]any{"watchId": res.Watch.ID.String()}
			}
		}
		s.publisher.Publish(ev)
	}
}

// SendCode issues a one-time code to the phone and returns its normalized
// form with the code's expiry.
func (s *Service) SendCode(ctx context.Context, phone string) (string, time.Time, error) {
	normalized, err := s.gate.NormalizePhone(phone)
	if err != nil {
		return "", time.Time{}, err
	}
	code, err := s.gate.Issue(ctx, normalized)
	if err != nil {
		return "", time.Time{}, err
	}
	return normalized, code.ExpiresAt, nil
}

// VerifyCode checks a code and, on success, remembers the phone as verified
// for a later SubmitIntake. A wrong code is a verification_rejected error.
func (s *Service) VerifyCode(ctx context.Context, phone, code string) (string, error) {
	normalized, err := s.gate.NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	result, err := s.gate.Verify(ctx, normalized, code)
	if err != nil {
		return "", err
	}
	if result != model.Verified {
		return "", errx.VerificationRejected()
	}
	if err := s.verified.MarkVerified(ctx, normalized, s.cfg.VerifiedMarkerTTL); err != nil {
		return "", err
	}
	return normalized, nil
}

// SubmitIntake finalizes a complete submission. Whether the phone is verified
// comes from the marker left by VerifyCode, never from the caller. The marker
// is claimed before finalizing so one verification yields at most one watch,
// and its token is the watch id. It is put back when no watch was created.
func (s *Service) SubmitIntake(ctx context.Context, fields model.Fields) (*model.WatchRequest, error) {
	fields.PhoneVerified = false
	fields.SubmissionID = ""

	normalized, err := s.gate.NormalizePhone(fields.Phone)
	if err != nil {
		return nil, err
	}
	fields.Phone = normalized

	marker, claimed, err := s.verified.ClaimVerified(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if claimed {
		fields.PhoneVerified = true
		fields.SubmissionID = marker.Token
	}

	watch, err := s.finalizer.Finalize(ctx, fields)
	if err != nil {
		if claimed {
			s.restoreMarker(ctx, normalized, marker)
		}
		return nil, err
	}
	return watch, nil
}

func (s *Service) restoreMarker(ctx context.Context, phone string, marker model.VerifiedMarker) {
	ctx = context.WithoutCancel(ctx)
	if err := s.verified.RestoreVerified(ctx, phone, marker); err != nil {
		s.log.Warn().Err(err).Str("phone", logx.MaskPhone(phone)).Msg("failed to restore verified marker")
	}
}
