// Package llm turns a captured selfie into a personal reminder email via
// an OpenAI-compatible chat-completions endpoint.
//
// Enrichment is a two-step call: an image model describes the person in
// the selfie, then a text model formulates a short German email from that
// description.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrConfig signals a missing API key. Callers treat any Describe error,
// this one included, as recoverable and fall back to the fixed body.
var ErrConfig = errors.New("llm api key must be set")

const (
	describeSystemPrompt = "You always write from a you perspective. You are a sentient snack assistant " +
		"that describes people in images in a friendly, non-sensitive way after they tried " +
		"one of your snacks and adds a friendly compliment."

	describeUserPrompt = "Please describe the person in this image: hair color, approximate age, clothing, " +
		"visible accessories, expression. Add a friendly compliment and say at the end I " +
		"hope you liked the snack from the creative space."

	formulateSystemPrompt = "You are a helpful snack machine that writes short, friendly emails in German to users " +
		"who have just used a snack from the 'Creative Space'. You are provided a description of a " +
		"person. The email should include elements of the description like their clothing for " +
		"example. The email should be polite. Make sure to include a friendly compliment based on " +
		"the description. End the email by saying that you know a lot about them from the form they " +
		"filled out but that their image and secrets are safe with the snack machine. The output " +
		"should only include the email, nothing else. Use 'DU' form, start with 'Hallo!', and keep " +
		"it under 150 words."
)

// Client calls the chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	imageModel string
	textModel  string
	client     *http.Client
}

func NewClient(baseURL, apiKey, imageModel, textModel string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		imageModel: imageModel,
		textModel:  textModel,
		client:     &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Describe reads the selfie at imagePath and returns the generated
// description and email body.
func (c *Client) Describe(ctx context.Context, imagePath string) (string, string, error) {
	if c.apiKey == "" {
		return "", "", ErrConfig
	}

	dataURI, err := encodeImage(imagePath)
	if err != nil {
		return "", "", fmt.Errorf("encode selfie: %w", err)
	}

	description, err := c.complete(ctx, completionRequest{
		Model: c.imageModel,
		Messages: []message{
			{Role: "system", Content: describeSystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: describeUserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			}},
		},
		Temperature: 0.8,
		TopP:        0.8,
	})
	if err != nil {
		return "", "", fmt.Errorf("describe selfie: %w", err)
	}

	body, err := c.complete(ctx, completionRequest{
		Model: c.textModel,
		Messages: []message{
			{Role: "system", Content: formulateSystemPrompt},
			{Role: "user", Content: []contentPart{{Type: "text", Text: description}}},
		},
		Temperature: 0.8,
		TopP:        0.8,
	})
	if err != nil {
		return "", "", fmt.Errorf("formulate email: %w", err)
	}

	return description, body, nil
}

func (c *Client) complete(ctx context.Context, payload completionRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error: %s", resp.Status)
	}

	var cr completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", errors.New("unexpected llm response format")
	}

	return cr.Choices[0].Message.Content, nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
