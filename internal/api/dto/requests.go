package dto

// RegisterRequest is the intake payload: who to remind and, optionally,
// the captured selfie as a base64 data URL. The recipient field keeps
// its legacy name; for the telegram channel it carries a chat ID, so the
// email format check is applied per channel at the handler.
type RegisterRequest struct {
	Email         string `json:"email" validate:"required"`
	SelfieDataURL string `json:"selfieDataUrl" validate:"omitempty"`
	Channel       string `json:"channel" validate:"omitempty,oneof=email telegram"`
}

// RegisterResponse confirms the queued reminder.
type RegisterResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	SelfiePath    string `json:"selfiePath,omitempty"`
	QueuedEmailAt string `json:"queuedEmailAt"`
}

// DispatchRequest optionally overrides the reference time for a manual
// dispatch pass (RFC3339).
type DispatchRequest struct {
	Now string `json:"now" validate:"omitempty"`
}
