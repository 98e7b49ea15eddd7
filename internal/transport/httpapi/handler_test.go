package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
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
	"github.com/pricewatch/intake-core/internal/intake/session"
	"github.com/pricewatch/intake-core/internal/intake/verification"
)

const testPhone = "+972501234567"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) *gin.Engine {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	watches, err := repo.OpenSQLiteWatchStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = watches.Close() })

	gate := verification.NewGate(repo.NewRedisCodeStore(rdb), core.Development, model.VerificationConfig{
		IssueLimit: 3, VerifyLimit: 5, Window: 5 * time.Minute, DefaultRegion: "IL",
	})
	fin := finalizer.New(watches)
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	svc := session.NewService(session.Dependencies{
		Sessions:     repo.NewRedisSessionStore(rdb, 30*time.Minute),
		Orchestrator: dialogue.New(gate, fin, model.DialogueConfig{TypingDelay: 400 * time.Millisecond}),
		Gate:         gate,
		Finalizer:    fin,
		Verified:     repo.NewRedisVerifiedPhoneStore(rdb),
		Publisher:    bus,
	}, session.Config{VerifiedMarkerTTL: 10 * time.Minute})

	return NewRouter(core.Testing, NewHandler(svc, bus), checks)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func startSession(t *testing.T, r http.Handler) SessionResponse {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/intake/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[SessionResponse](t, w)
}

func TestStartSession(t *testing.T) {
	r := newTestRouter(t, nil)
	s := startSession(t, r)

	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, model.StageWelcome, s.Stage)
	assert.Zero(t, s.Step)
	require.NotEmpty(t, s.Prompts)
	assert.GreaterOrEqual(t, s.Prompts[0].DelayMs, int64(400))
	assert.Len(t, s.Prompts[len(s.Prompts)-1].QuickReplies, 2)

	w := do(t, r, http.MethodGet, "/api/intake/sessions/"+s.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StageWelcome, decode[SessionResponse](t, w).Stage)
}

func TestActionAdvancesSession(t *testing.T) {
	r := newTestRouter(t, nil)
	s := startSession(t, r)

	w := do(t, r, http.MethodPost, "/api/intake/sessions/"+s.SessionID+"/actions",
		ActionRequest{Kind: model.ActionQuickReply, Value: dialogue.ReplyHasProduct})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[SessionResponse](t, w)
	assert.Equal(t, model.PathHasProduct, res.Path)
	assert.Equal(t, 1, res.Step)
	assert.Equal(t, []model.EventKind{model.EventPathChosen}, res.Events)
}

func TestActionErrors(t *testing.T) {
	r := newTestRouter(t, nil)
	s := startSession(t, r)
	path := "/api/intake/sessions/" + s.SessionID + "/actions"
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, path,
		ActionRequest{Kind: model.ActionQuickReply, Value: dialogue.ReplyHasProduct}).Code)

	t.Run("out of sequence", func(t *testing.T) {
		w := do(t, r, http.MethodPost, path, ActionRequest{Kind: model.ActionSubmit, Fields: map[string]string{model.FieldCode: "111111"}})
		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[ErrorResponse](t, w)
		assert.Equal(t, errx.KindInvalidTransition, body.Kind)
		require.NotNil(t, body.Session)
		assert.Equal(t, model.StageProductName, body.Session.Stage)
		assert.Empty(t, body.Session.Prompts)
	})

	t.Run("validation reprompt", func(t *testing.T) {
		w := do(t, r, http.MethodPost, path, ActionRequest{Kind: model.ActionSubmit, Fields: map[string]string{model.FieldProductName: "  "}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode[ErrorResponse](t, w)
		assert.Equal(t, errx.KindValidation, body.Kind)
		require.Len(t, body.Fields, 1)
		assert.Equal(t, model.FieldProductName, body.Fields[0].Field)
		require.NotNil(t, body.Session)
		assert.Len(t, body.Session.Prompts, 2)
	})

	t.Run("missing kind", func(t *testing.T) {
		w := do(t, r, http.MethodPost, path, map[string]string{"text": "hi"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, errx.KindValidation, decode[ErrorResponse](t, w).Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(t, r, http.MethodPost, path, "{")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/intake/sessions/nope/actions", ActionRequest{Kind: model.ActionText, Text: "hi"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decode[ErrorResponse](t, w)
		assert.Equal(t, errx.KindNotFound, body.Kind)
		assert.Nil(t, body.Session)
	})
}

func watchRequest() SubmitIntakeRequest {
	return SubmitIntakeRequest{
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

func TestSubmitIntakeEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(t, r, http.MethodPost, "/api/watches", watchRequest())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[ErrorResponse](t, w)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, model.FieldPhone, body.Fields[0].Field)

	w = do(t, r, http.MethodPost, "/api/verification/send-code", SendCodeRequest{Phone: "050-123-4567"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testPhone, decode[SendCodeResponse](t, w).Phone)

	w = do(t, r, http.MethodPost, "/api/verification/verify-code", VerifyCodeRequest{Phone: testPhone, Code: "999999"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errx.KindVerificationRejected, decode[ErrorResponse](t, w).Kind)

	w = do(t, r, http.MethodPost, "/api/verification/verify-code", VerifyCodeRequest{Phone: testPhone, Code: model.DevelopmentCode})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[VerifyCodeResponse](t, w).Verified)

	w = do(t, r, http.MethodPost, "/api/watches", watchRequest())
	require.Equal(t, http.StatusCreated, w.Code)
	watch := decode[model.WatchRequest](t, w)
	assert.Equal(t, "iPhone 15", watch.ProductName)
	assert.True(t, watch.IsActive)
	assert.Nil(t, watch.LastPrice)

	w = do(t, r, http.MethodPost, "/api/watches", watchRequest())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "one verification creates one watch")
}

func TestSubmitIntakeIgnoresClientID(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(t, r, http.MethodPost, "/api/verification/verify-code", VerifyCodeRequest{Phone: testPhone, Code: model.DevelopmentCode})
	require.Equal(t, http.StatusOK, w.Code)

	clientID := uuid.NewString()
	body := map[string]any{
		"id":           clientID,
		"submissionId": clientID,
		"productName":  "iPhone 15",
		"storeKey":     "amazon",
		"productUrl":   "https://www.amazon.com/dp/B0CHX1W1XY",
		"targetType":   model.TargetPrice,
		"targetValue":  2999,
		"phone":        testPhone,
		"consentGiven": true,
	}
	w = do(t, r, http.MethodPost, "/api/watches", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEqual(t, clientID, decode[model.WatchRequest](t, w).ID.String())
}

func TestSendCodeValidation(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(t, r, http.MethodPost, "/api/verification/send-code", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[ErrorResponse](t, w)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "Phone", body.Fields[0].Field)

	w = do(t, r, http.MethodPost, "/api/verification/send-code", SendCodeRequest{Phone: "12"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	w := do(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestStreamEvents(t *testing.T) {
	r := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	s := startSession(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/intake/sessions/"+s.SessionID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() string {
		for lines.Scan() {
			line := lines.Text()
			if strings.HasPrefix(line, "event:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
		return ""
	}
	require.Equal(t, "connected", nextEvent())

	body, err := json.Marshal(ActionRequest{Kind: model.ActionQuickReply, Value: dialogue.ReplyNeedsHelp})
	require.NoError(t, err)
	post, err := http.Post(srv.URL+"/api/intake/sessions/"+s.SessionID+"/actions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	assert.Equal(t, string(model.EventPathChosen), nextEvent())
}

func TestStreamEventsUnknownSession(t *testing.T) {
	r := newTestRouter(t, nil)
	w := do(t, r, http.MethodGet, "/api/intake/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
