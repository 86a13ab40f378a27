package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"snacklock/internal/api/dto"
	"snacklock/internal/api/respond"
	"snacklock/internal/config"
	"snacklock/internal/model"
	notifrepo "snacklock/internal/repository/notification"
	"snacklock/internal/repository/selfie"
	notifsvc "snacklock/internal/service/notification"
	"snacklock/pkg/email"
)

type notifService interface {
	CreateNotification(ctx context.Context, in notifsvc.CreateInput, sendNow bool) (model.Notification, error)
	GetNotificationByID(id string) (model.Notification, error)
}

type dispatcher interface {
	ProcessDue(ctx context.Context, now time.Time)
}

type Handler struct {
	service    notifService
	dispatcher dispatcher
	validator  *validator.Validate
	cfg        *config.Config
}

func NewHandler(
	s notifService,
	d dispatcher,
	v *validator.Validate,
	cfg *config.Config,
) *Handler {
	return &Handler{service: s, dispatcher: d, validator: v, cfg: cfg}
}

// Register accepts a reminder request, queues it, and (by default)
// attempts an immediate send. An immediate failure is reported as a bad
// gateway so the caller can distinguish it from "queued for later".
func (h *Handler) Register(c *ginext.Context) {
	var req dto.RegisterRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	// The telegram channel addresses a chat ID; only the email channel
	// requires an email-shaped recipient.
	channel := req.Channel
	if channel == "" {
		channel = model.DefaultChannel
	}
	if channel == model.DefaultChannel {
		if err := h.validator.Var(req.Email, "email"); err != nil {
			zlog.Logger.Warn().Err(err).Msg("failed to validate recipient address")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
			return
		}
	}

	in := notifsvc.CreateInput{
		Recipient:     req.Email,
		Channel:       req.Channel,
		SelfieDataURL: req.SelfieDataURL,
	}

	rec, err := h.service.CreateNotification(c.Request.Context(), in, h.cfg.Dispatch.SendImmediately)
	if err != nil {
		switch {
		case errors.Is(err, selfie.ErrInvalidDataURL):
			zlog.Logger.Warn().Err(err).Msg("failed to decode selfie data")
			respond.Fail(c.Writer, http.StatusBadRequest, err)
		case errors.Is(err, email.ErrConfig):
			zlog.Logger.Error().Err(err).Msg("delivery misconfigured")
			respond.Fail(c.Writer, http.StatusBadGateway, err)
		case rec.ID != "":
			// Queued, but the immediate dispatch attempt failed; the
			// record already carries its terminal state.
			zlog.Logger.Error().Err(err).Str("id", rec.ID).Msg("instant dispatch failed")
			respond.Fail(c.Writer, http.StatusBadGateway, err)
		default:
			zlog.Logger.Error().Err(err).Str("email", req.Email).Msg("failed to create notification")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		}
		return
	}

	respond.Created(c.Writer, dto.RegisterResponse{
		ID:            rec.ID,
		Email:         rec.Recipient,
		SelfiePath:    rec.SelfiePath,
		QueuedEmailAt: rec.SendAt.UTC().Format(time.RFC3339),
	})
}

// GetStatus returns the current state of a queued notification.
func (h *Handler) GetStatus(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	rec, err := h.service.GetNotificationByID(id)
	if err != nil {
		if errors.Is(err, notifrepo.ErrNotificationNotFound) {
			zlog.Logger.Warn().Str("id", id).Err(err).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to get notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, rec)
}

// Dispatch runs one dispatch pass, optionally at an overridden reference
// time (testability hook; defaults to now).
func (h *Handler) Dispatch(c *ginext.Context) {
	var req dto.DispatchRequest

	if c.Request.Body != nil {
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			zlog.Logger.Error().Err(err).Msg("failed to decode request body")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
			return
		}
	}

	now := time.Now().UTC()
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid now override: %s", err.Error()))
			return
		}
		now = parsed.UTC()
	}

	h.dispatcher.ProcessDue(c.Request.Context(), now)

	respond.OK(c.Writer, "dispatch pass completed")
}

// Health reports liveness.
func (h *Handler) Health(c *ginext.Context) {
	respond.OK(c.Writer, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
