package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"zapdesk/pkg/httputil"
)

// APIError carries the HTTP status the gateway answered with, so callers can
// propagate it on their own response path.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Client talks to the messaging gateway's HTTP API.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

// NewClient creates a gateway client authenticated with a bearer credential.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway baseURL cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gateway apiKey cannot be empty")
	}

	client := httputil.NewRestyClient(baseURL, 10*time.Second).
		SetAuthToken(apiKey)

	log.Info().Str("baseURL", baseURL).Msg("Gateway client configured")

	return &Client{httpClient: client, baseURL: baseURL}, nil
}

// ConnectionState holds the live connection status the gateway reports for an
// instance. The instance is considered connected when a user marker is present
// or the status string is literally "connected".
type ConnectionState struct {
	Instance struct {
		User   string `json:"user"`
		Status string `json:"status"`
	} `json:"instance"`
}

// Connected computes the boolean connection flag from the gateway's answer.
func (s *ConnectionState) Connected() bool {
	return s.Instance.User != "" || s.Instance.Status == "connected"
}

// GetConnectionState queries the gateway for an instance's live status.
func (c *Client) GetConnectionState(ctx context.Context, instanceKey string) (*ConnectionState, error) {
	url := fmt.Sprintf("/instance/connectionState/%s", instanceKey)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&ConnectionState{}).
		Get(url)

	if err != nil {
		log.Error().Err(err).Str("instanceKey", instanceKey).Msg("Gateway API: GetConnectionState request failed")
		return nil, fmt.Errorf("gateway GetConnectionState request failed: %w", err)
	}

	if resp.IsError() {
		log.Error().Str("instanceKey", instanceKey).Int("statusCode", resp.StatusCode()).Str("responseBody", string(resp.Body())).Msg("Gateway API: GetConnectionState returned an error")
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return resp.Result().(*ConnectionState), nil
}

// SendTextRequest is the outbound send payload, keyed by destination phone,
// channel instance and organization.
type SendTextRequest struct {
	InstanceKey    string `json:"instance"`
	Phone          string `json:"phone"`
	Text           string `json:"text"`
	OrganizationID string `json:"organization_id"`
}

// SendText delivers a text message through the gateway.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) error {
	url := fmt.Sprintf("/message/sendText/%s", req.InstanceKey)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		Post(url)

	if err != nil {
		log.Error().Err(err).Str("instanceKey", req.InstanceKey).Str("phone", req.Phone).Msg("Gateway API: SendText request failed")
		return fmt.Errorf("gateway SendText request failed: %w", err)
	}

	if resp.IsError() {
		log.Error().Str("instanceKey", req.InstanceKey).Str("phone", req.Phone).Int("statusCode", resp.StatusCode()).Str("responseBody", string(resp.Body())).Msg("Gateway API: SendText returned an error")
		return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	log.Debug().Str("instanceKey", req.InstanceKey).Str("phone", req.Phone).Msg("Gateway text sent")
	return nil
}
