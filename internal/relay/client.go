// Package relay implements the client side of the external message-transport
// channel: session credentials, per-activity delivery, and bulk history
// delivery into a session.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// MaxBatchSize is the channel's hard ceiling on activities per bulk delivery.
const MaxBatchSize = 500

// Client is an HTTP client for the relay channel API.
type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
}

// NewClient creates a relay client for the given base URL and channel secret.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type sessionUser struct {
	ID string `json:"id"`
}

type createSessionRequest struct {
	User sessionUser `json:"user"`
}

// CreateSession requests a brand-new session credential for the user.
func (c *Client) CreateSession(ctx context.Context, userID string) (*domain.Credential, error) {
	var cred domain.Credential
	req := createSessionRequest{User: sessionUser{ID: userID}}
	if err := c.do(ctx, http.MethodPost, "/v3/directline/tokens/generate", c.secret, req, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// DescribeSession asks the relay to describe an existing session so the
// caller can resume it instead of minting a new credential.
func (c *Client) DescribeSession(ctx context.Context, sessionID string) (*domain.Credential, error) {
	var cred domain.Credential
	path := "/v3/directline/conversations/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, c.secret, nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// RefreshToken renews a previously issued session token.
func (c *Client) RefreshToken(ctx context.Context, token string) (*domain.Credential, error) {
	var cred domain.Credential
	if err := c.do(ctx, http.MethodPost, "/v3/directline/tokens/refresh", token, nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

type transcript struct {
	Activities []*domain.Activity `json:"activities"`
}

// BulkDeliver uploads one ordered batch of past activities into the target
// session. Batches above MaxBatchSize are rejected locally.
func (c *Client) BulkDeliver(ctx context.Context, target string, activities []*domain.Activity) error {
	if len(activities) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds channel limit of %d", len(activities), MaxBatchSize)
	}
	path := "/v3/conversations/" + url.PathEscape(target) + "/activities/history"
	return c.do(ctx, http.MethodPost, path, c.secret, transcript{Activities: activities}, nil)
}

type resourceResponse struct {
	ID string `json:"id"`
}

// SendActivities delivers activities to their conversations one at a time,
// returning the channel-assigned id for each.
func (c *Client) SendActivities(ctx context.Context, activities []*domain.Activity) ([]string, error) {
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		path := "/v3/conversations/" + url.PathEscape(a.Conversation.ID) + "/activities"
		var res resourceResponse
		if err := c.do(ctx, http.MethodPost, path, c.secret, a, &res); err != nil {
			return ids, err
		}
		if a.ID == "" {
			a.ID = res.ID
		}
		ids = append(ids, res.ID)
	}
	return ids, nil
}

// UpdateActivity replaces a previously sent activity on the channel.
func (c *Client) UpdateActivity(ctx context.Context, a *domain.Activity) error {
	path := "/v3/conversations/" + url.PathEscape(a.Conversation.ID) + "/activities/" + url.PathEscape(a.ID)
	return c.do(ctx, http.MethodPut, path, c.secret, a, nil)
}

// DeleteActivity removes a previously sent activity from the channel.
func (c *Client) DeleteActivity(ctx context.Context, ref *domain.ConversationRef) error {
	path := "/v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities/" + url.PathEscape(ref.ActivityID)
	return c.do(ctx, http.MethodDelete, path, c.secret, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", domain.ErrRelayUnavailable, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrRelayUnavailable, err)
		}
	}
	return nil
}
