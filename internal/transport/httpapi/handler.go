// Package httpapi exposes the intake service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pricewatch/intake-core/internal/intake/dialogue"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// IntakeService is the application surface the handlers call.
type IntakeService interface {
	Start(ctx context.Context) (dialogue.Result, error)
	State(ctx context.Context, id string) (model.ConversationState, error)
	HandleAction(ctx context.Context, id string, action model.UserAction) (dialogue.Result, error)
	SendCode(ctx context.Context, phone string) (string, time.Time, error)
	VerifyCode(ctx context.Context, phone, code string) (string, error)
	SubmitIntake(ctx context.Context, fields model.Fields) (*model.WatchRequest, error)
}

// Subscriber streams session events.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan model.SessionEvent, func())
}

type Handler struct {
	svc       IntakeService
	events    Subscriber
	keepAlive time.Duration
	log       zerolog.Logger
}

func NewHandler(svc IntakeService, events Subscriber) *Handler {
	return &Handler{
		svc:       svc,
		events:    events,
		keepAlive: 25 * time.Second,
		log:       logx.Component("http"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	intake := rg.Group("/intake/sessions")
	intake.POST("", h.StartSession)
	intake.GET("/:id", h.GetSession)
	intake.POST("/:id/actions", h.HandleAction)
	intake.GET("/:id/events", h.StreamEvents)

	rg.POST("/watches", h.SubmitIntake)

	verification := rg.Group("/verification")
	verification.POST("/send-code", h.SendCode)
	verification.POST("/verify-code", h.VerifyCode)
}

func (h *Handler) StartSession(c *gin.Context) {
	res, err := h.svc.Start(c.Request.Context())
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(res))
}

func (h *Handler) GetSession(c *gin.Context) {
	state, err := h.svc.State(c.Request.Context(), c.Param("id"))
	if HandleError(c, err) {
		return
	}
	OK(c, newSessionResponse(dialogue.Result{State: state}))
}

func (h *Handler) HandleAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, bindError(err))
		return
	}

	res, err := h.svc.HandleAction(c.Request.Context(), c.Param("id"), req.toAction())
	if err != nil {
		var session *SessionResponse
		if res.State.ID != "" {
			session = newSessionResponse(res)
		}
		handleErrorWithSession(c, err, session)
		return
	}
	OK(c, newSessionResponse(res))
}

// StreamEvents pushes session events as server-sent events until the client
// disconnects or the subscription ends.
func (h *Handler) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.State(c.Request.Context(), id); HandleError(c, err) {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	events, cancel := h.events.Subscribe(id)
	defer cancel()

	c.SSEvent("connected", gin.H{"sessionId": id})
	c.Writer.Flush()
	h.log.Debug().Str("session_id", id).Msg("event stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			h.log.Debug().Str("session_id", id).Msg("event stream closed by client")
			return
		case <-ticker.C:
			c.SSEvent("ping", "")
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to encode event")
				continue
			}
			c.SSEvent(string(ev.Kind), string(data))
			c.Writer.Flush()
		}
	}
}

func (h *Handler) SubmitIntake(c *gin.Context) {
	var req SubmitIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, bindError(err))
		return
	}
	watch, err := h.svc.SubmitIntake(c.Request.Context(), req.toFields())
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, watch)
}

func (h *Handler) SendCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, bindError(err))
		return
	}
	phone, expiresAt, err := h.svc.SendCode(c.Request.Context(), req.Phone)
	if HandleError(c, err) {
		return
	}
	OK(c, SendCodeResponse{Phone: phone, ExpiresAt: expiresAt})
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, bindError(err))
		return
	}
	phone, err := h.svc.VerifyCode(c.Request.Context(), req.Phone, req.Code)
	if HandleError(c, err) {
		return
	}
	OK(c, VerifyCodeResponse{Phone: phone, Verified: true})
}
