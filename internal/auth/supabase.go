package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Error is a non-2xx answer from the auth server.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth status %d: %s", e.Status, e.Message)
}

// Session is what signup and login hand back to players.
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         SupabaseUser `json:"user"`
}

type SupabaseUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Username returns the username chosen at signup, if any.
func (u SupabaseUser) Username() string {
	s, _ := u.Metadata["username"].(string)
	return strings.TrimSpace(s)
}

// SupabaseClient signs players up and in against Supabase GoTrue and
// resolves bearer tokens back to users.
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewSupabaseClient(baseURL, anonKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// SignUp registers a player; the username travels as user metadata.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password, username string) (Session, error) {
	payload := map[string]any{"email": email, "password": password}
	if username = strings.TrimSpace(username); username != "" {
		payload["data"] = map[string]string{"username": username}
	}
	var out Session
	err := c.call(ctx, http.MethodPost, "/auth/v1/signup", "", payload, &out)
	return out, err
}

// Login exchanges a password for a session. Rejected credentials yield
// ErrInvalidCredentials; anything else is an *Error or a transport error.
func (c *SupabaseClient) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &out)
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Status == http.StatusBadRequest {
		return Session{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, authErr.Message)
	}
	return out, err
}

// VerifyAccessToken resolves the user behind accessToken. A token the auth
// server rejects yields ErrInvalidToken.
func (c *SupabaseClient) VerifyAccessToken(ctx context.Context, accessToken string) (SupabaseUser, error) {
	var user SupabaseUser
	err := c.call(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user)
	var authErr *Error
	if errors.As(err, &authErr) && (authErr.Status == http.StatusUnauthorized || authErr.Status == http.StatusForbidden) {
		return SupabaseUser{}, ErrInvalidToken
	}
	if err != nil {
		return SupabaseUser{}, fmt.Errorf("verify token: %w", err)
	}
	if user.ID == "" {
		return SupabaseUser{}, ErrInvalidToken
	}
	return user, nil
}

func (c *SupabaseClient) call(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return parseError(resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError reads the GoTrue error shapes: {"error","error_description"},
// {"error_code","msg"} and {"code","message"}.
func parseError(status int, raw []byte) *Error {
	var body struct {
		Error       string `json:"error"`
		ErrorCode   string `json:"error_code"`
		Description string `json:"error_description"`
		Msg         string `json:"msg"`
		Message     string `json:"message"`
	}
	out := &Error{Status: status}
	if json.Unmarshal(raw, &body) != nil {
		out.Message = strings.TrimSpace(string(raw))
		return out
	}
	out.Code = firstNonEmpty(body.ErrorCode, body.Error)
	out.Message = firstNonEmpty(body.Description, body.Msg, body.Message, body.Error, strings.TrimSpace(string(raw)))
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
