package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"
	MaxBatchSize   = 100
)

// ValidToken reports whether token looks like an Expo push token.
func ValidToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

type PushMessage struct {
	To        string         `json:"to"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Sound     string         `json:"sound,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
}

type Ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

func (t Ticket) OK() bool { return t.Status == "ok" }

type SendResult struct {
	Success int
	Failed  int
	// Tickets holds one entry per accepted message, in request order.
	Tickets []Ticket
}

type ExpoClient struct {
	url        string
	httpClient *http.Client
}

func NewExpoClient(url string) *ExpoClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultExpoURL
	}
	return &ExpoClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send pushes msgs in batches of MaxBatchSize. Messages with an invalid token
// are counted as failed without being sent. A batch whose request fails counts
// every message in it as failed; Send only returns an error when ctx ends.
func (c *ExpoClient) Send(ctx context.Context, msgs []PushMessage) (SendResult, error) {
	var out SendResult
	valid := make([]PushMessage, 0, len(msgs))
	for _, m := range msgs {
		if !ValidToken(m.To) {
			out.Failed++
			continue
		}
		if m.Sound == "" {
			m.Sound = "default"
		}
		if m.Priority == "" {
			m.Priority = "high"
		}
		if m.ChannelID == "" {
			m.ChannelID = "default"
		}
		valid = append(valid, m)
	}

	for start := 0; start < len(valid); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(valid))
		batch := valid[start:end]
		tickets, err := c.post(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Failed += len(batch)
			continue
		}
		for _, t := range tickets {
			if t.OK() {
				out.Success++
			} else {
				out.Failed++
			}
		}
		if missing := len(batch) - len(tickets); missing > 0 {
			out.Failed += missing
		}
		out.Tickets = append(out.Tickets, tickets...)
	}
	return out, nil
}

func (c *ExpoClient) post(ctx context.Context, batch []PushMessage) ([]Ticket, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("expo status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Data []Ticket `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	return out.Data, nil
}
