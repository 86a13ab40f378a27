package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"snacklock/internal/model"
	notifrepo "snacklock/internal/repository/notification"
)

type stubEnricher struct {
	describe func(ctx context.Context, imagePath string) (string, string, error)
	calls    int
}

func (s *stubEnricher) Describe(ctx context.Context, imagePath string) (string, string, error) {
	s.calls++
	if s.describe == nil {
		return "", "", errors.New("describe not stubbed")
	}
	return s.describe(ctx, imagePath)
}

type stubDeliverer struct {
	send func(to, body, attachment, description string) error
	sent []string
}

func (s *stubDeliverer) Send(to, body, attachment, description string) error {
	s.sent = append(s.sent, to)
	if s.send == nil {
		return nil
	}
	return s.send(to, body, attachment, description)
}

func testStrategy() retry.Strategy {
	return retry.Strategy{Attempts: 1, Delay: time.Millisecond}
}

func newTestRepo(t *testing.T) *notifrepo.Repository {
	t.Helper()
	repo := notifrepo.NewRepository(filepath.Join(t.TempDir(), "email_queue.json"))
	require.NoError(t, repo.Ensure())
	return repo
}

func queueRecord(t *testing.T, repo *notifrepo.Repository, recipient, selfiePath string) model.Notification {
	t.Helper()
	now := time.Now().UTC()
	rec, err := repo.Append(model.Notification{
		Recipient:  recipient,
		Channel:    model.DefaultChannel,
		SelfiePath: selfiePath,
		QueuedAt:   now,
		SendAt:     now,
		Status:     model.StatusPending,
	})
	require.NoError(t, err)
	return rec
}

func TestDispatchRecord_NoSelfie_SendsFallbackBody(t *testing.T) {
	repo := newTestRepo(t)
	enricher := &stubEnricher{}

	var gotBody, gotDescription string
	deliverer := &stubDeliverer{send: func(_, body, _, description string) error {
		gotBody, gotDescription = body, description
		return nil
	}}

	d := NewDispatcher(repo, enricher, map[string]Deliverer{"email": deliverer}, testStrategy())

	rec := queueRecord(t, repo, "a@example.com", "")
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, rec.QueuedAt, rec.SendAt)

	require.NoError(t, d.DispatchRecord(context.Background(), rec))

	// No selfie means no enrichment call at all.
	assert.Zero(t, enricher.calls)
	assert.Equal(t, FallbackBody, gotBody)
	assert.Empty(t, gotDescription)

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, FallbackBody, got.Body)
	require.NotNil(t, got.SentAt)
}

func TestDispatchRecord_WithSelfie_EnrichesBody(t *testing.T) {
	repo := newTestRepo(t)

	selfiePath := filepath.Join(t.TempDir(), "selfie.png")
	require.NoError(t, os.WriteFile(selfiePath, []byte("png-bytes"), 0o600))

	enricher := &stubEnricher{describe: func(_ context.Context, path string) (string, string, error) {
		assert.Equal(t, selfiePath, path)
		return "rote Jacke, freundliches Lächeln", "Hallo! Danke für deinen Besuch.", nil
	}}

	var gotBody, gotDescription string
	deliverer := &stubDeliverer{send: func(_, body, _, description string) error {
		gotBody, gotDescription = body, description
		return nil
	}}

	d := NewDispatcher(repo, enricher, map[string]Deliverer{"email": deliverer}, testStrategy())
	rec := queueRecord(t, repo, "a@example.com", selfiePath)

	require.NoError(t, d.DispatchRecord(context.Background(), rec))

	assert.Equal(t, "Hallo! Danke für deinen Besuch.", gotBody)
	assert.Equal(t, "rote Jacke, freundliches Lächeln", gotDescription)

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, "Hallo! Danke für deinen Besuch.", got.Body)
	assert.Equal(t, "rote Jacke, freundliches Lächeln", got.Description)
}

func TestDispatchRecord_EnrichmentFailure_FallsBack(t *testing.T) {
	repo := newTestRepo(t)

	selfiePath := filepath.Join(t.TempDir(), "selfie.png")
	require.NoError(t, os.WriteFile(selfiePath, []byte("png-bytes"), 0o600))

	enricher := &stubEnricher{describe: func(_ context.Context, _ string) (string, string, error) {
		return "", "", errors.New("llm API error: 503 Service Unavailable")
	}}

	var gotBody string
	deliverer := &stubDeliverer{send: func(_, body, _, _ string) error {
		gotBody = body
		return nil
	}}

	d := NewDispatcher(repo, enricher, map[string]Deliverer{"email": deliverer}, testStrategy())
	rec := queueRecord(t, repo, "a@example.com", selfiePath)

	// Enrichment failure must not fail the dispatch.
	require.NoError(t, d.DispatchRecord(context.Background(), rec))
	assert.Equal(t, FallbackBody, gotBody)

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
}

func TestDispatchRecord_MissingSelfieFile_FallsBack(t *testing.T) {
	repo := newTestRepo(t)
	enricher := &stubEnricher{}
	deliverer := &stubDeliverer{}

	d := NewDispatcher(repo, enricher, map[string]Deliverer{"email": deliverer}, testStrategy())
	rec := queueRecord(t, repo, "a@example.com", filepath.Join(t.TempDir(), "gone.png"))

	require.NoError(t, d.DispatchRecord(context.Background(), rec))

	assert.Zero(t, enricher.calls)
	assert.Len(t, deliverer.sent, 1)
}

func TestDispatchRecord_DeliveryFailure_MarksFailed(t *testing.T) {
	repo := newTestRepo(t)
	deliverer := &stubDeliverer{send: func(_, _, _, _ string) error {
		return errors.New("network timeout")
	}}

	d := NewDispatcher(repo, &stubEnricher{}, map[string]Deliverer{"email": deliverer}, testStrategy())
	rec := queueRecord(t, repo, "a@example.com", "")

	err := d.DispatchRecord(context.Background(), rec)
	require.Error(t, err)

	got, lookupErr := repo.GetByID(rec.ID)
	require.NoError(t, lookupErr)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "network timeout", got.Error)
	require.NotNil(t, got.FailedAt)
}

func TestDispatchRecord_UnknownChannel_MarksFailed(t *testing.T) {
	repo := newTestRepo(t)

	d := NewDispatcher(repo, &stubEnricher{}, map[string]Deliverer{"email": &stubDeliverer{}}, testStrategy())

	now := time.Now().UTC()
	rec, err := repo.Append(model.Notification{
		Recipient: "a@example.com",
		Channel:   "pigeon",
		QueuedAt:  now,
		SendAt:    now,
		Status:    model.StatusPending,
	})
	require.NoError(t, err)

	require.Error(t, d.DispatchRecord(context.Background(), rec))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "pigeon")
}

func TestProcessDue_IsolatesFailures(t *testing.T) {
	repo := newTestRepo(t)

	// First record fails delivery, second succeeds; the batch must
	// process both.
	deliverer := &stubDeliverer{send: func(to, _, _, _ string) error {
		if to == "first@example.com" {
			return errors.New("network timeout")
		}
		return nil
	}}

	d := NewDispatcher(repo, &stubEnricher{}, map[string]Deliverer{"email": deliverer}, testStrategy())

	first := queueRecord(t, repo, "first@example.com", "")
	second := queueRecord(t, repo, "second@example.com", "")

	d.ProcessDue(context.Background(), time.Now().UTC())

	assert.Equal(t, []string{"first@example.com", "second@example.com"}, deliverer.sent)

	gotFirst, err := repo.GetByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, gotFirst.Status)
	assert.Equal(t, "network timeout", gotFirst.Error)

	gotSecond, err := repo.GetByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, gotSecond.Status)
}

func TestProcessDue_SkipsTerminalRecords(t *testing.T) {
	repo := newTestRepo(t)
	deliverer := &stubDeliverer{}

	d := NewDispatcher(repo, &stubEnricher{}, map[string]Deliverer{"email": deliverer}, testStrategy())

	rec := queueRecord(t, repo, "a@example.com", "")
	d.ProcessDue(context.Background(), time.Now().UTC())

	sent, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSent, sent.Status)

	// A second pass must not touch the terminal record.
	d.ProcessDue(context.Background(), time.Now().UTC())

	assert.Len(t, deliverer.sent, 1)
	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestProcessDue_NothingDue(t *testing.T) {
	repo := newTestRepo(t)
	deliverer := &stubDeliverer{}

	d := NewDispatcher(repo, &stubEnricher{}, map[string]Deliverer{"email": deliverer}, testStrategy())

	now := time.Now().UTC()
	_, err := repo.Append(model.Notification{
		Recipient: "a@example.com",
		QueuedAt:  now,
		SendAt:    now.Add(time.Hour),
		Status:    model.StatusPending,
	})
	require.NoError(t, err)

	d.ProcessDue(context.Background(), now)

	assert.Empty(t, deliverer.sent)

	records, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, records[0].Status)
}
