// Package finalizer validates a completed intake and persists it as a watch.
package finalizer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const maxPercentDrop = 100

// submission is the schema a finished intake must satisfy.
type submission struct {
	ProductName  string           `json:"productName" validate:"required,max=300"`
	StoreKey     string           `json:"storeKey" validate:"required,max=100"`
	ProductURL   string           `json:"productUrl" validate:"required,url"`
	TargetType   model.TargetType `json:"targetType" validate:"required,oneof=target_price percent_drop"`
	TargetValue  float64          `json:"targetValue" validate:"gt=0"`
	TrackingMode string           `json:"trackingMode" validate:"omitempty,oneof=track_now wait_for_sale"`
	Phone        string           `json:"phone" validate:"required,e164"`
	ConsentGiven bool             `json:"consentGiven" validate:"eq=true"`
}

// Finalizer turns verified fields into a persisted WatchRequest.
type Finalizer struct {
	store    model.WatchStore
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Finalizer)

func WithClock(now func() time.Time) Option {
	return func(f *Finalizer) { f.now = now }
}

func New(store model.WatchStore, opts ...Option) *Finalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateTarget, submission{})

	f := &Finalizer{
		store:    store,
		validate: v,
		now:      time.Now,
		log:      logx.Component("finalizer"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func validateTarget(sl validator.StructLevel) {
	s := sl.Current().Interface().(submission)
	if math.IsNaN(s.TargetValue) || math.IsInf(s.TargetValue, 0) {
		sl.ReportError(s.TargetValue, model.FieldTargetValue, "TargetValue", "finite", "")
		return
	}
	if s.TargetType == model.PercentDrop && s.TargetValue > maxPercentDrop {
		sl.ReportError(s.TargetValue, model.FieldTargetValue, "TargetValue", "max_percent", "")
	}
}

// Finalize validates fields and creates the watch. An unverified phone is
// rejected before any other check and never reaches the store.
func (f *Finalizer) Finalize(ctx context.Context, fields model.Fields) (*model.WatchRequest, error) {
	if !fields.PhoneVerified {
		return nil, errx.Validation("phone number has not been verified",
			errx.FieldError{Field: model.FieldPhone, Message: "Please verify your phone number first."})
	}

	sub := submission{
		ProductName:  strings.TrimSpace(fields.ProductName),
		StoreKey:     strings.TrimSpace(fields.StoreKey),
		ProductURL:   strings.TrimSpace(fields.ProductURL),
		TargetType:   fields.TargetType,
		TargetValue:  fields.TargetValue,
		TrackingMode: fields.TrackingMode,
		Phone:        fields.Phone,
		ConsentGiven: fields.ConsentGiven,
	}
	if err := f.validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, errx.Validation("submission is incomplete", fieldErrors(verrs)...)
		}
		return nil, err
	}

	id, err := uuid.Parse(fields.SubmissionID)
	if err != nil {
		id = uuid.New()
	}
	now := f.now().UTC()
	watch := &model.WatchRequest{
		ID:           id,
		ProductName:  sub.ProductName,
		StoreKey:     sub.StoreKey,
		ProductURL:   sub.ProductURL,
		TargetType:   sub.TargetType,
		TargetValue:  sub.TargetValue,
		TrackingMode: sub.TrackingMode,
		Phone:        sub.Phone,
		ConsentGiven: true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := f.store.CreateWatch(ctx, watch); err != nil {
		f.log.Error().Err(err).Str("watch_id", id.String()).Msg("failed to create watch")
		return nil, errx.WrapStorage(err)
	}
	f.log.Info().
		Str("watch_id", id.String()).
		Str("store_key", watch.StoreKey).
		Str("target_type", string(watch.TargetType)).
		Str("phone", logx.MaskPhone(watch.Phone)).
		Msg("watch created")
	return watch, nil
}

func fieldErrors(verrs validator.ValidationErrors) []errx.FieldError {
	out := make([]errx.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errx.FieldError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "consentGiven":
		return "You need to agree to receive notifications."
	case "phone":
		return "Phone number must be in international format, e.g. +972501234567."
	case "productUrl":
		if fe.Tag() == "url" {
			return "Please enter a full product link starting with https://."
		}
	case "targetType":
		return "Choose a target price or a percentage drop."
	case "targetValue":
		if fe.Tag() == "max_percent" {
			return "A percentage drop cannot exceed 100."
		}
		return "Target must be a positive number."
	case "trackingMode":
		return "Choose when to start tracking."
	}
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "This value is too long."
	}
	return "This value is invalid."
}
