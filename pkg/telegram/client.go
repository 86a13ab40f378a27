// Package telegram delivers queued reminders to a Telegram chat.
//
// Telegram is a text transport here: the selfie attachment is not
// forwarded, only the body and the optional description.
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client sends messages through the Telegram Bot API.
type Client struct {
	token  string
	client *http.Client
}

// NewClient creates a Client with the given bot token.
func NewClient(token string) *Client {
	return &Client{
		token:  token,
		client: &http.Client{},
	}
}

// sendMessageRequest is the payload for the Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts the message to the given chat ID. The attachment path is
// ignored; the description, when present, is appended below the body.
func (c *Client) Send(to, body, _ string, description string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.token)

	text := body
	if description != "" {
		text += "\n\n" + description
	}

	reqBody := sendMessageRequest{
		ChatID: to,
		Text:   text,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %s", resp.Status)
	}

	return nil
}
