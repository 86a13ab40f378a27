package notification

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"snacklock/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

// naiveTimeLayout accepts legacy timestamps written without a zone offset;
// they are treated as UTC.
const naiveTimeLayout = "2006-01-02T15:04:05"

// Repository persists the notification queue as a single JSON document.
//
// Every mutation is a load-modify-rewrite of the whole collection. The
// document is small (single-tenant tool), and the rewrite goes through a
// temp file plus rename so readers never observe a half-written queue.
// A single in-process mutex makes this repository the only writer; other
// components must never touch the file directly.
type Repository struct {
	mu   sync.Mutex
	path string
}

// NewRepository creates a repository backed by the given queue file path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Ensure creates the directory holding the queue document. Safe to call
// any number of times.
func (r *Repository) Ensure() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	return nil
}

// storedRecord is the raw on-disk shape. Timestamps stay strings here so a
// single malformed value never fails the whole document decode; they are
// repaired in normalize.
type storedRecord struct {
	ID          string `json:"id"`
	Recipient   string `json:"email"`
	Channel     string `json:"channel"`
	SelfiePath  string `json:"selfie_path,omitempty"`
	Description string `json:"llm_description,omitempty"`
	Body        string `json:"email_body,omitempty"`
	QueuedAt    string `json:"queued_at"`
	SendAt      string `json:"send_at"`
	Status      string `json:"status"`
	SentAt      string `json:"sent_at,omitempty"`
	FailedAt    string `json:"failed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Load reads the full queue document.
//
// A missing or unparsable document yields an empty collection rather than
// an error: a corrupt queue must never block intake. Individually
// incomplete or wrong-typed records are repaired field by field (fresh
// id, pending status, timestamps defaulted to now), never dropped.
func (r *Repository) Load() ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Repository) loadLocked() ([]model.Notification, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Notification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue document: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		zlog.Logger.Warn().Err(err).Str("path", r.path).Msg("queue document unreadable, starting empty")
		return []model.Notification{}, nil
	}

	records := make([]model.Notification, 0, len(raw))
	for _, el := range raw {
		records = append(records, normalize(decodeRecord(el)))
	}

	return records, nil
}

// decodeRecord unmarshals one element of the queue document. An element
// that does not decode cleanly (wrong-typed field, unexpected shape) is
// salvaged field by field so its siblings are never lost with it.
func decodeRecord(el json.RawMessage) storedRecord {
	var sr storedRecord
	if err := json.Unmarshal(el, &sr); err == nil {
		return sr
	}

	var m map[string]any
	if err := json.Unmarshal(el, &m); err != nil {
		return storedRecord{}
	}

	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}

	return storedRecord{
		ID:          str("id"),
		Recipient:   str("email"),
		Channel:     str("channel"),
		SelfiePath:  str("selfie_path"),
		Description: str("llm_description"),
		Body:        str("email_body"),
		QueuedAt:    str("queued_at"),
		SendAt:      str("send_at"),
		Status:      str("status"),
		SentAt:      str("sent_at"),
		FailedAt:    str("failed_at"),
		Error:       str("error"),
	}
}

// Save atomically replaces the entire queue document.
func (r *Repository) Save(records []model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(records)
}

func (r *Repository) saveLocked(records []model.Notification) error {
	raw := make([]storedRecord, 0, len(records))
	for _, n := range records {
		raw = append(raw, encode(n))
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue document: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write queue document: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace queue document: %w", err)
	}

	return nil
}

// Append adds a record to the queue and returns it in its normalized form.
func (r *Repository) Append(n model.Notification) (model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadLocked()
	if err != nil {
		return model.Notification{}, err
	}

	n = normalize(encode(n))
	records = append(records, n)

	if err := r.saveLocked(records); err != nil {
		return model.Notification{}, err
	}

	return n, nil
}

// GetByID returns the record with the given id.
func (r *Repository) GetByID(id string) (model.Notification, error) {
	records, err := r.Load()
	if err != nil {
		return model.Notification{}, err
	}

	for _, n := range records {
		if n.ID == id {
			return n, nil
		}
	}

	return model.Notification{}, ErrNotificationNotFound
}

// MarkSent transitions a pending record to sent, stamping sent_at and
// persisting the body and description that were actually delivered. A
// missing id or an already-terminal record is a no-op.
func (r *Repository) MarkSent(id, body, description string) error {
	return r.transition(id, func(n *model.Notification) {
		now := time.Now().UTC()
		n.Status = model.StatusSent
		n.SentAt = &now
		if body != "" {
			n.Body = body
		}
		if description != "" {
			n.Description = description
		}
	})
}

// MarkFailed transitions a pending record to failed, stamping failed_at
// and recording the failure reason. A missing id or an already-terminal
// record is a no-op.
func (r *Repository) MarkFailed(id, reason string) error {
	return r.transition(id, func(n *model.Notification) {
		now := time.Now().UTC()
		n.Status = model.StatusFailed
		n.FailedAt = &now
		n.Error = reason
	})
}

func (r *Repository) transition(id string, mutate func(*model.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadLocked()
	if err != nil {
		return err
	}

	updated := false
	for i := range records {
		if records[i].ID != id {
			continue
		}
		// Terminal statuses are sticky: a repeated dispatch pass must not
		// rewrite an already-recorded outcome.
		if records[i].Terminal() {
			return nil
		}
		mutate(&records[i])
		updated = true
		break
	}

	if !updated {
		return nil
	}

	return r.saveLocked(records)
}

// normalize repairs a raw record into a well-formed Notification: fresh id
// when missing, pending status when missing, UTC timestamps defaulted to
// now when absent or malformed.
func normalize(sr storedRecord) model.Notification {
	now := time.Now().UTC()

	n := model.Notification{
		ID:          sr.ID,
		Recipient:   sr.Recipient,
		Channel:     sr.Channel,
		SelfiePath:  sr.SelfiePath,
		Description: sr.Description,
		Body:        sr.Body,
		Status:      sr.Status,
		Error:       sr.Error,
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Channel == "" {
		n.Channel = model.DefaultChannel
	}
	if n.Status == "" {
		n.Status = model.StatusPending
	}

	n.QueuedAt = parseTime(sr.QueuedAt, now)
	n.SendAt = parseTime(sr.SendAt, now)

	if sr.SentAt != "" {
		t := parseTime(sr.SentAt, now)
		n.SentAt = &t
	}
	if sr.FailedAt != "" {
		t := parseTime(sr.FailedAt, now)
		n.FailedAt = &t
	}

	return n
}

func encode(n model.Notification) storedRecord {
	sr := storedRecord{
		ID:          n.ID,
		Recipient:   n.Recipient,
		Channel:     n.Channel,
		SelfiePath:  n.SelfiePath,
		Description: n.Description,
		Body:        n.Body,
		Status:      n.Status,
		Error:       n.Error,
	}

	if !n.QueuedAt.IsZero() {
		sr.QueuedAt = n.QueuedAt.UTC().Format(time.RFC3339Nano)
	}
	if !n.SendAt.IsZero() {
		sr.SendAt = n.SendAt.UTC().Format(time.RFC3339Nano)
	}
	if n.SentAt != nil {
		sr.SentAt = n.SentAt.UTC().Format(time.RFC3339Nano)
	}
	if n.FailedAt != nil {
		sr.FailedAt = n.FailedAt.UTC().Format(time.RFC3339Nano)
	}

	return sr
}

// parseTime accepts RFC3339 with any offset and the legacy naive layout
// (assumed UTC). Anything else is repaired to the fallback.
func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(naiveTimeLayout, s); err == nil {
		return t.UTC()
	}
	return fallback
}
