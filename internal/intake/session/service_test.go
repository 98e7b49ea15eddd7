package session

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/intake-core/internal/core"
	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/dialogue"
	"github.com/pricewatch/intake-core/internal/intake/events"
	"github.com/pricewatch/intake-core/internal/intake/finalizer"
	"github.com/pricewatch/intake-core/internal/intake/model"
	"github.com/pricewatch/intake-core/internal/intake/repo"
	"github.com/pricewatch/intake-core/internal/intake/verification"
)

const testPhone = "+972501234567"

type fixture struct {
	svc     *Service
	mr      *miniredis.Miniredis
	watches *repo.SQLiteWatchStore
	dbPath  string
	bus     *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore lets a test wrap the watch store the finalizer writes to.
func newFixtureWithStore(t *testing.T, wrap func(model.WatchStore) model.WatchStore) *fixture {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dbPath := filepath.Join(t.TempDir(), "watches.db")
	watches, err := repo.OpenSQLiteWatchStore(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watches.Close() })

	gate := verification.NewGate(repo.NewRedisCodeStore(rdb), core.Development, model.VerificationConfig{
		IssueLimit:    3,
		VerifyLimit:   5,
		Window:        5 * time.Minute,
		DefaultRegion: "IL",
	})
	var store model.WatchStore = watches
	if wrap != nil {
		store = wrap(watches)
	}
	fin := finalizer.New(store)
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	svc := NewService(Dependencies{
		Sessions:     repo.NewRedisSessionStore(rdb, 30*time.Minute),
		Orchestrator: dialogue.New(gate, fin, model.DialogueConfig{}),
		Gate:         gate,
		Finalizer:    fin,
		Verified:     repo.NewRedisVerifiedPhoneStore(rdb),
		Publisher:    bus,
	}, Config{VerifiedMarkerTTL: 10 * time.Minute})

	return &fixture{svc: svc, mr: mr, watches: watches, dbPath: dbPath, bus: bus}
}

func completeFields() model.Fields {
	return model.Fields{
		ProductName:  "iPhone 15",
		StoreKey:     "amazon",
		ProductURL:   "https://www.amazon.com/dp/B0CHX1W1XY",
		TargetType:   model.TargetPrice,
		TargetValue:  2999,
		TrackingMode: model.TrackNow,
		Phone:        testPhone,
		ConsentGiven: true,
	}
}

func TestStartPersistsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, res.State.ID)

	stored, err := f.svc.State(ctx, res.State.ID)
	require.NoError(t, err)
	assert.Equal(t, res.State, stored)
}

func TestHandleActionUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleAction(context.Background(), "missing", model.TextAction("hi"))
	assert.True(t, errx.IsKind(err, errx.KindNotFound))
}

func TestConversationCreatesWatchAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := start.State.ID
	sub, cancel := f.bus.Subscribe(id)
	defer cancel()

	var last dialogue.Result
	for _, a := range []model.UserAction{
		model.QuickReplyAction(dialogue.ReplyHasProduct),
		model.TextAction("iPhone 15"),
		model.TextAction("https://www.amazon.com/dp/B0CHX1W1XY"),
		model.QuickReplyAction(dialogue.ReplyTargetPrice),
		model.TextAction("2999"),
		model.QuickReplyAction(dialogue.ReplyTrackNow),
		model.SubmitAction(map[string]string{model.FieldPhone: testPhone, model.FieldConsent: "true"}),
		model.TextAction(model.DevelopmentCode),
	} {
		last, err = f.svc.HandleAction(ctx, id, a)
		require.NoError(t, err)
	}

	assert.Equal(t, model.StageWatchCreated, last.State.Stage)
	require.NotNil(t, last.Watch)
	stored, err := f.watches.GetWatch(ctx, last.Watch.ID)
	require.NoError(t, err)
	assert.Equal(t, "iPhone 15", stored.ProductName)

	persisted, err := f.svc.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageWatchCreated, persisted.Stage)

	var kinds []model.EventKind
	for len(sub) > 0 {
		ev := <-sub
		assert.Equal(t, id, ev.SessionID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []model.EventKind{
		model.EventPathChosen, model.EventCodeIssued, model.EventPhoneVerified,
		model.EventWatchCreated, model.EventFlowClosed,
	}, kinds)
}

func TestNonFiniteTargetIsRepromptedAndSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := start.State.ID
	for _, a := range []model.UserAction{
		model.QuickReplyAction(dialogue.ReplyHasProduct),
		model.TextAction("iPhone 15"),
		model.TextAction("https://www.amazon.com/dp/B0CHX1W1XY"),
		model.QuickReplyAction(dialogue.ReplyTargetPrice),
	} {
		_, err = f.svc.HandleAction(ctx, id, a)
		require.NoError(t, err)
	}

	res, err := f.svc.HandleAction(ctx, id, model.SubmitAction(map[string]string{model.FieldTargetValue: "NaN"}))
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindValidation))
	assert.NotEmpty(t, res.Prompts)

	persisted, err := f.svc.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageTargetValue, persisted.Stage)
	assert.Zero(t, persisted.Fields.TargetValue)
}

func TestInvalidTransitionLeavesStoredState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx)
	require.NoError(t, err)
	res, err := f.svc.HandleAction(ctx, start.State.ID, model.QuickReplyAction(dialogue.ReplyHasProduct))
	require.NoError(t, err)

	_, err = f.svc.HandleAction(ctx, start.State.ID, model.SubmitAction(map[string]string{model.FieldCode: "111111"}))
	assert.True(t, errx.IsKind(err, errx.KindInvalidTransition))

	stored, err := f.svc.State(ctx, start.State.ID)
	require.NoError(t, err)
	assert.Equal(t, res.State, stored)
}

func TestSubmitIntakeRequiresVerifiedMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fields := completeFields()
	fields.PhoneVerified = true
	_, err := f.svc.SubmitIntake(ctx, fields)
	require.Error(t, err)
	var appErr *errx.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errx.KindValidation, appErr.Kind)
	assert.Equal(t, model.FieldPhone, appErr.Fields[0].Field)
}

func TestSendVerifySubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	phone, expires, err := f.svc.SendCode(ctx, "050-123-4567")
	require.NoError(t, err)
	assert.Equal(t, testPhone, phone)
	assert.True(t, expires.After(time.Now()))

	_, err = f.svc.VerifyCode(ctx, testPhone, "000000")
	assert.True(t, errx.IsKind(err, errx.KindVerificationRejected))

	phone, err = f.svc.VerifyCode(ctx, "0501234567", model.DevelopmentCode)
	require.NoError(t, err)
	assert.Equal(t, testPhone, phone)

	fields := completeFields()
	fields.Phone = "050 123 4567"
	watch, err := f.svc.SubmitIntake(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, testPhone, watch.Phone)
	assert.True(t, watch.IsActive)

	// the marker is single use
	_, err = f.svc.SubmitIntake(ctx, completeFields())
	assert.True(t, errx.IsKind(err, errx.KindValidation))
}

func TestFailedSubmitKeepsMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SendCode(ctx, testPhone)
	require.NoError(t, err)
	_, err = f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)

	bad := completeFields()
	bad.ProductURL = "not a url"
	_, err = f.svc.SubmitIntake(ctx, bad)
	assert.True(t, errx.IsKind(err, errx.KindValidation))

	_, err = f.svc.SubmitIntake(ctx, completeFields())
	assert.NoError(t, err)
}

func TestVerifiedMarkerExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SendCode(ctx, testPhone)
	require.NoError(t, err)
	_, err = f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)

	f.mr.FastForward(11 * time.Minute)
	_, err = f.svc.SubmitIntake(ctx, completeFields())
	assert.True(t, errx.IsKind(err, errx.KindValidation))
}

type hookedStore struct {
	model.WatchStore
	before func()
	after  func() error
}

func (h *hookedStore) CreateWatch(ctx context.Context, w *model.WatchRequest) error {
	if h.before != nil {
		before := h.before
		h.before = nil
		before()
	}
	if err := h.WatchStore.CreateWatch(ctx, w); err != nil {
		return err
	}
	if h.after != nil {
		after := h.after
		h.after = nil
		return after()
	}
	return nil
}

func countWatches(t *testing.T, f *fixture) int {
	t.Helper()
	db, err := sql.Open("sqlite", f.dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM watch_requests").Scan(&n))
	return n
}

func TestSubmitDuringInFlightInsertCreatesOneWatch(t *testing.T) {
	hook := &hookedStore{}
	f := newFixtureWithStore(t, func(inner model.WatchStore) model.WatchStore {
		hook.WatchStore = inner
		return hook
	})
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)

	var secondErr error
	hook.before = func() {
		_, secondErr = f.svc.SubmitIntake(ctx, completeFields())
	}

	watch, err := f.svc.SubmitIntake(ctx, completeFields())
	require.NoError(t, err)
	require.NotNil(t, watch)
	require.Error(t, secondErr)
	assert.True(t, errx.IsKind(secondErr, errx.KindValidation))
	assert.Equal(t, 1, countWatches(t, f))
}

func TestConcurrentSubmitsCreateOneWatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.SubmitIntake(ctx, completeFields()); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, countWatches(t, f))
}

func TestWatchIDComesFromMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)
	token, err := f.mr.Get("otp:verified:" + testPhone)
	require.NoError(t, err)

	fields := completeFields()
	fields.SubmissionID = uuid.NewString()
	watch, err := f.svc.SubmitIntake(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, token, watch.ID.String())
}

func TestStorageFailureRetryReusesWatch(t *testing.T) {
	hook := &hookedStore{after: func() error { return errx.Storage(errors.New("connection reset")) }}
	f := newFixtureWithStore(t, func(inner model.WatchStore) model.WatchStore {
		hook.WatchStore = inner
		return hook
	})
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, testPhone, model.DevelopmentCode)
	require.NoError(t, err)

	_, err = f.svc.SubmitIntake(ctx, completeFields())
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindStorage))
	assert.True(t, f.mr.Exists("otp:verified:"+testPhone))

	watch, err := f.svc.SubmitIntake(ctx, completeFields())
	require.NoError(t, err)
	assert.Equal(t, 1, countWatches(t, f))

	stored, err := f.watches.GetWatch(ctx, watch.ID)
	require.NoError(t, err)
	assert.Equal(t, watch.ProductName, stored.ProductName)
}
