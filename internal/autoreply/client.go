package autoreply

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"zapdesk/pkg/httputil"
)

// Client talks to the automated reply service. It exposes two operations:
// generating a reply for a persisted message and parsing a handoff
// confirmation out of free text.
type Client struct {
	httpClient *resty.Client
}

// NewClient creates an automated reply service client.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("autoreply baseURL cannot be empty")
	}

	client := httputil.NewRestyClient(baseURL, 30*time.Second)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	log.Info().Str("baseURL", baseURL).Msg("Autoreply client configured")

	return &Client{httpClient: client}, nil
}

type generateRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// GenerateReply asks the service for a generated reply to a conversation
// message.
func (c *Client) GenerateReply(ctx context.Context, conversationID, messageID string) (string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(generateRequest{ConversationID: conversationID, MessageID: messageID}).
		SetResult(&generateResponse{}).
		Post("/reply/generate")

	if err != nil {
		log.Error().Err(err).Str("conversationID", conversationID).Msg("Autoreply API: GenerateReply request failed")
		return "", fmt.Errorf("autoreply GenerateReply request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("conversationID", conversationID).Int("statusCode", resp.StatusCode()).Str("responseBody", string(resp.Body())).Msg("Autoreply API: GenerateReply returned an error")
		return "", fmt.Errorf("autoreply GenerateReply error: status %s, body: %s", resp.Status(), resp.String())
	}

	return resp.Result().(*generateResponse).Reply, nil
}

// ConfirmationResult is the service's final word on a handoff confirmation
// candidate: whether the user confirmed the handoff, plus an optional
// continuation reply for the declined case.
type ConfirmationResult struct {
	Handoff bool   `json:"handoff"`
	Reply   string `json:"reply,omitempty"`
}

type parseConfirmationRequest struct {
	Text string `json:"text"`
}

// ParseConfirmation classifies free text that the keyword heuristics already
// flagged as a plausible handoff confirmation.
func (c *Client) ParseConfirmation(ctx context.Context, text string) (*ConfirmationResult, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(parseConfirmationRequest{Text: text}).
		SetResult(&ConfirmationResult{}).
		Post("/reply/parse-confirmation")

	if err != nil {
		log.Error().Err(err).Msg("Autoreply API: ParseConfirmation request failed")
		return nil, fmt.Errorf("autoreply ParseConfirmation request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Int("statusCode", resp.StatusCode()).Str("responseBody", string(resp.Body())).Msg("Autoreply API: ParseConfirmation returned an error")
		return nil, fmt.Errorf("autoreply ParseConfirmation error: status %s, body: %s", resp.Status(), resp.String())
	}

	return resp.Result().(*ConfirmationResult), nil
}
