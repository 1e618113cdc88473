package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/auth"
	"lifesim/internal/depreciation"
	"lifesim/internal/store"

	"github.com/google/uuid"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err came back from the API rather than the
// network. Only network failures are worth queueing for a retry.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Catalog(ctx context.Context, accessToken string) ([]depreciation.CatalogItem, error) {
	var out struct {
		Items []depreciation.CatalogItem `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/catalog", accessToken, nil, &out, "")
	return out.Items, err
}

func (c *Client) Holdings(ctx context.Context, accessToken string) ([]depreciation.Holding, error) {
	var out struct {
		Holdings []depreciation.Holding `json:"holdings"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/holdings", accessToken, nil, &out, "")
	return out.Holdings, err
}

type BuyResult struct {
	Holding        depreciation.Holding `json:"holding"`
	MentorReaction *advisory.Message    `json:"mentor_reaction"`
}

func BuyPath() string { return "/v1/holdings" }

func BuyBody(itemID uuid.UUID) map[string]any {
	return map[string]any{"item_id": itemID.String()}
}

func (c *Client) Buy(ctx context.Context, accessToken string, itemID uuid.UUID, idem string) (BuyResult, error) {
	var out BuyResult
	err := c.jsonRequest(ctx, http.MethodPost, BuyPath(), accessToken, BuyBody(itemID), &out, idem)
	return out, err
}

type SellResult struct {
	Sale           depreciation.SaleResult `json:"sale"`
	MentorReaction *advisory.Message       `json:"mentor_reaction"`
}

func SellPath(holdingID uuid.UUID) string {
	return "/v1/holdings/" + url.PathEscape(holdingID.String()) + "/sell"
}

func (c *Client) Sell(ctx context.Context, accessToken string, holdingID uuid.UUID, idem string) (SellResult, error) {
	var out SellResult
	err := c.jsonRequest(ctx, http.MethodPost, SellPath(holdingID), accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) Preview(ctx context.Context, accessToken string, holdingID uuid.UUID) (depreciation.Preview, error) {
	var out depreciation.Preview
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/holdings/"+url.PathEscape(holdingID.String())+"/preview", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) MentorMetrics(ctx context.Context, accessToken string) (advisory.Metrics, error) {
	var out advisory.Metrics
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/mentor/metrics", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) MentorMessages(ctx context.Context, accessToken string) ([]advisory.Message, error) {
	var out struct {
		Messages []advisory.Message `json:"messages"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/mentor/messages", accessToken, nil, &out, "")
	return out.Messages, err
}

func (c *Client) MentorStats(ctx context.Context, accessToken string) (advisory.Stats, error) {
	var out advisory.Stats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/mentor/stats", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) FollowAdvice(ctx context.Context, accessToken string, interactionID uuid.UUID) (advisory.Interaction, error) {
	var out advisory.Interaction
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/mentor/interactions/"+url.PathEscape(interactionID.String())+"/followed", accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Mentors(ctx context.Context, accessToken string) ([]advisory.Mentor, error) {
	var out struct {
		Mentors []advisory.Mentor `json:"mentors"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/mentors", accessToken, nil, &out, "")
	return out.Mentors, err
}

func (c *Client) CheckAction(ctx context.Context, accessToken, action string, data advisory.ActionData) (advisory.Decision, error) {
	body := map[string]any{"action": action}
	if !data.Amount.IsZero() {
		body["amount"] = data.Amount
	}
	if data.AssetType != "" {
		body["asset_type"] = data.AssetType
	}
	if data.LoanType != "" {
		body["loan_type"] = data.LoanType
	}
	var out advisory.Decision
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/missions/check-action", accessToken, body, &out, "")
	return out, err
}

func (c *Client) Notifications(ctx context.Context, accessToken string, limit int) ([]store.Notification, error) {
	var out struct {
		Notifications []store.Notification `json:"notifications"`
	}
	path := "/v1/notifications"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Notifications, err
}

// Do sends a raw request; used to replay queued writes.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
