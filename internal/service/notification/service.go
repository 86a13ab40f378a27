package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"snacklock/internal/model"
)

type queueRepository interface {
	Ensure() error
	Append(model.Notification) (model.Notification, error)
	GetByID(id string) (model.Notification, error)
}

type selfieStore interface {
	SaveDataURL(dataURL string) (string, error)
}

type dispatcher interface {
	DispatchRecord(ctx context.Context, rec model.Notification) error
}

// CreateInput is an intake request.
type CreateInput struct {
	Recipient     string
	Channel       string
	SelfieDataURL string
	Description   string
}

// Service queues reminder notifications and optionally dispatches them
// right away.
type Service struct {
	repo       queueRepository
	selfies    selfieStore
	dispatcher dispatcher
}

func NewService(repo queueRepository, selfies selfieStore, d dispatcher) *Service {
	return &Service{repo: repo, selfies: selfies, dispatcher: d}
}

// CreateNotification persists the selfie (when provided), enqueues a
// pending record scheduled for immediate delivery, and, when sendNow is
// set, attempts one dispatch. A dispatch error leaves the record in its
// terminal failed state and is returned alongside the record so the
// caller can surface the failure.
func (s *Service) CreateNotification(ctx context.Context, in CreateInput, sendNow bool) (model.Notification, error) {
	if err := s.repo.Ensure(); err != nil {
		return model.Notification{}, fmt.Errorf("ensure storage: %w", err)
	}

	selfiePath := ""
	if in.SelfieDataURL != "" {
		path, err := s.selfies.SaveDataURL(in.SelfieDataURL)
		if err != nil {
			return model.Notification{}, fmt.Errorf("save selfie: %w", err)
		}
		selfiePath = path
	}

	channel := in.Channel
	if channel == "" {
		channel = model.DefaultChannel
	}

	now := time.Now().UTC()
	rec, err := s.repo.Append(model.Notification{
		ID:          uuid.NewString(),
		Recipient:   in.Recipient,
		Channel:     channel,
		SelfiePath:  selfiePath,
		Description: in.Description,
		QueuedAt:    now,
		// No deferred-scheduling policy yet: send as soon as a dispatch
		// pass sees the record.
		SendAt: now,
		Status: model.StatusPending,
	})
	if err != nil {
		return model.Notification{}, fmt.Errorf("queue notification: %w", err)
	}

	zlog.Logger.Info().
		Str("id", rec.ID).
		Str("to", rec.Recipient).
		Str("channel", rec.Channel).
		Str("selfie", rec.SelfiePath).
		Time("send_at", rec.SendAt).
		Msg("queued reminder notification")

	if sendNow {
		if err := s.dispatcher.DispatchRecord(ctx, rec); err != nil {
			return rec, fmt.Errorf("instant dispatch: %w", err)
		}
	}

	return rec, nil
}

// GetNotificationByID returns the current state of a queued record.
func (s *Service) GetNotificationByID(id string) (model.Notification, error) {
	rec, err := s.repo.GetByID(id)
	if err != nil {
		return model.Notification{}, fmt.Errorf("get notification: %w", err)
	}

	return rec, nil
}
