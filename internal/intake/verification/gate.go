// Package verification issues and checks one-time codes that prove control
// of a phone number.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pricewatch/intake-core/internal/core"
	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	"github.com/pricewatch/intake-core/internal/sms"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Gate issues and verifies one-time codes against a shared CodeStore.
// It is safe for concurrent use.
type Gate struct {
	store  model.CodeStore
	sender sms.Sender
	env    core.Environment
	region string

	issueLimits  *phoneLimiter
	verifyLimits *phoneLimiter

	now      func() time.Time
	generate func() (string, error)
	log      zerolog.Logger
}

type Option func(*Gate)

// WithSender delivers every issued code through s.
func WithSender(s sms.Sender) Option {
	return func(g *Gate) { g.sender = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithCodeGenerator replaces the random code source used outside development.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(g *Gate) { g.generate = fn }
}

func NewGate(store model.CodeStore, env core.Environment, cfg model.VerificationConfig, opts ...Option) *Gate {
	g := &Gate{
		store:        store,
		env:          env,
		region:       cfg.DefaultRegion,
		issueLimits:  newPhoneLimiter(cfg.IssueLimit, cfg.Window),
		verifyLimits: newPhoneLimiter(cfg.VerifyLimit, cfg.Window),
		now:          time.Now,
		generate:     randomCode,
		log:          logx.Component("verification"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizePhone formats input as E.164 using the gate's default region.
func (g *Gate) NormalizePhone(input string) (string, error) {
	return NormalizePhone(input, g.region)
}

// Issue creates, stores and delivers a new code for phone.
func (g *Gate) Issue(ctx context.Context, phone string) (model.OneTimeCode, error) {
	phone, err := g.NormalizePhone(phone)
	if err != nil {
		return model.OneTimeCode{}, err
	}
	now := g.now()
	if !g.issueLimits.allow(phone, now) {
		g.log.Warn().Str("phone", logx.MaskPhone(phone)).Msg("code issuance rate limited")
		return model.OneTimeCode{}, errx.RateLimited()
	}

	value := model.DevelopmentCode
	if !g.env.IsDevelopment() {
		if value, err = g.generate(); err != nil {
			return model.OneTimeCode{}, fmt.Errorf("generate code: %w", err)
		}
	}

	code := model.OneTimeCode{
		ID:        uuid.NewString(),
		Phone:     phone,
		Code:      value,
		IssuedAt:  now,
		ExpiresAt: now.Add(model.CodeTTL),
	}

	if err := g.store.IssueCode(ctx, code); err != nil {
		if !g.env.IsDevelopment() {
			return model.OneTimeCode{}, errx.WrapStorage(err)
		}
		g.log.Warn().Err(err).Str("phone", logx.MaskPhone(phone)).Msg("failed to persist code, continuing in development mode")
	}

	if g.sender != nil {
		if err := g.sender.SendCode(ctx, phone, code.Code); err != nil {
			if !g.env.IsDevelopment() {
				return model.OneTimeCode{}, errx.Delivery(err)
			}
			g.log.Warn().Err(err).Str("phone", logx.MaskPhone(phone)).Msg("failed to deliver code, continuing in development mode")
		}
	}

	g.log.Info().Str("phone", logx.MaskPhone(phone)).Time("expires_at", code.ExpiresAt).Msg("code issued")
	return code, nil
}

// Verify checks code for phone and consumes it on success. Wrong, expired,
// consumed and unknown codes all yield Rejected with a nil error; only
// collaborator failures and rate limiting produce errors.
func (g *Gate) Verify(ctx context.Context, phone, code string) (model.VerificationResult, error) {
	phone, err := g.NormalizePhone(phone)
	if err != nil {
		return model.Rejected, err
	}
	now := g.now()
	if !g.verifyLimits.allow(phone, now) {
		g.log.Warn().Str("phone", logx.MaskPhone(phone)).Msg("code verification rate limited")
		return model.Rejected, errx.RateLimited()
	}
	if !wellFormed(code) {
		return model.Rejected, nil
	}

	if g.env.IsDevelopment() && code == model.DevelopmentCode {
		g.discardDevelopmentCode(ctx, phone)
		g.log.Info().Str("phone", logx.MaskPhone(phone)).Msg("development code accepted")
		return model.Verified, nil
	}

	rec, err := g.store.FindCode(ctx, phone, code)
	if err != nil {
		return model.Rejected, errx.WrapStorage(err)
	}
	if rec == nil || rec.Expired(now) {
		g.log.Debug().Str("phone", logx.MaskPhone(phone)).Msg("code rejected")
		return model.Rejected, nil
	}

	deleted, err := g.store.DeleteCode(ctx, *rec)
	if err != nil {
		return model.Rejected, errx.WrapStorage(err)
	}
	if !deleted {
		// a concurrent verify consumed it first
		return model.Rejected, nil
	}

	g.log.Info().Str("phone", logx.MaskPhone(phone)).Msg("phone verified")
	return model.Verified, nil
}

func (g *Gate) discardDevelopmentCode(ctx context.Context, phone string) {
	rec, err := g.store.FindCode(ctx, phone, model.DevelopmentCode)
	if err != nil {
		g.log.Debug().Err(err).Msg("development code lookup failed")
		return
	}
	if rec == nil {
		return
	}
	if _, err := g.store.DeleteCode(ctx, *rec); err != nil {
		g.log.Debug().Err(err).Msg("development code delete failed")
	}
}

func wellFormed(code string) bool {
	if len(code) != model.CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var codeSpace = big.NewInt(1_000_000)

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
