package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"insightdash/internal/entities"
)

// ErrUnauthenticated marks 401 responses from the upstream so callers can
// send the operator back to login.
var ErrUnauthenticated = errors.New("unauthenticated")

// FetchError wraps a network, status or decode failure on a table fetch.
// Callers render an empty result instead of propagating it into the view.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cache is the slice of the redis wrapper the client needs. A nil cache
// disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Client talks to the remote BI backend. All real computation (forecasts,
// churn scoring, aggregation, message delivery) happens there; this client
// only fetches, normalizes and submits.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	observe  func(path, status string)
}

type Option func(*Client)

// WithCache enables TTL caching of table fetches.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithObserver installs a per-request hook (path, status) for metrics.
func WithObserver(fn func(path, status string)) Option {
	return func(c *Client) { c.observe = fn }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, sc entities.SessionContext, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sc.Token)
	}
	return req, nil
}

func (c *Client) count(path string, status int) {
	if c.observe != nil {
		c.observe(path, strconv.Itoa(status))
	}
}

// FetchTable fetches rows from an upstream table endpoint and normalizes
// the response. Failures come back as *FetchError with an empty TableData.
func (c *Client) FetchTable(ctx context.Context, sc entities.SessionContext, path string, query url.Values) (entities.TableData, error) {
	key := cacheKey(path, query)
	if c.cache != nil {
		var cached entities.TableData
		if ok, err := c.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	req, err := c.newRequest(ctx, sc, http.MethodGet, path, query, nil)
	if err != nil {
		return entities.TableData{}, &FetchError{Path: path, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.count(path, 0)
		return entities.TableData{}, &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.count(path, resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		return entities.TableData{}, &FetchError{Path: path, Err: ErrUnauthenticated}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entities.TableData{}, &FetchError{Path: path, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return entities.TableData{}, &FetchError{Path: path, Err: err}
	}
	td, err := Normalize(data)
	if err != nil {
		return entities.TableData{}, &FetchError{Path: path, Err: err}
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, td, c.cacheTTL); err != nil {
			// Cache trouble must never fail the fetch.
			fmt.Printf("[GATEWAY] cache write for %s failed: %v\n", path, err)
		}
	}
	return td, nil
}

func cacheKey(path string, query url.Values) string {
	if len(query) == 0 {
		return "insightdash:table:" + path
	}
	return "insightdash:table:" + path + "?" + query.Encode()
}

// wireMessage matches the history endpoint: ids are database integers for
// stored rows but WhatsApp "wamid." strings for live ones, so decode raw.
type wireMessage struct {
	ID        json.RawMessage `json:"id"`
	Text      string          `json:"text"`
	From      string          `json:"from"`
	Timestamp float64         `json:"timestamp"`
	Status    string          `json:"status"`
}

func (w wireMessage) toEntity() entities.ChatMessage {
	id := string(bytes.Trim(w.ID, `"`))
	if id == "null" {
		id = ""
	}
	return entities.ChatMessage{
		ID:        id,
		Text:      w.Text,
		Direction: w.From,
		Timestamp: w.Timestamp,
		Status:    w.Status,
	}
}

// History loads the ordered message transcript for a phone number.
func (c *Client) History(ctx context.Context, sc entities.SessionContext, phone string) ([]entities.ChatMessage, error) {
	query := url.Values{"phone": {phone}}
	req, err := c.newRequest(ctx, sc, http.MethodGet, "/whatsapp-messages", query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.count("/whatsapp-messages", 0)
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer resp.Body.Close()
	c.count("/whatsapp-messages", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("load history: upstream status %d", resp.StatusCode)
	}

	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	messages := make([]entities.ChatMessage, 0, len(wire))
	for _, w := range wire {
		messages = append(messages, w.toEntity())
	}
	return messages, nil
}

// Send submits one text message and returns the server-assigned message id
// ("" when the upstream response carries none).
func (c *Client) Send(ctx context.Context, sc entities.SessionContext, toNumber, message string) (string, error) {
	body := map[string]string{"to_number": toNumber, "message": message}
	req, err := c.newRequest(ctx, sc, http.MethodPost, "/send-message", nil, body)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.count("/send-message", 0)
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	c.count("/send-message", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("send message: upstream status %d", resp.StatusCode)
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(result.Messages) == 0 {
		return "", nil
	}
	return result.Messages[0].ID, nil
}

// TokenResponse is the upstream auth reply.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Email       string `json:"email"`
}

// Registration carries the upstream register payload.
type Registration struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	return c.authRequest(ctx, "/login", map[string]string{"email": email, "password": password})
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, reg Registration) (TokenResponse, error) {
	return c.authRequest(ctx, "/register", reg)
}

func (c *Client) authRequest(ctx context.Context, path string, body any) (TokenResponse, error) {
	req, err := c.newRequest(ctx, entities.SessionContext{}, http.MethodPost, path, nil, body)
	if err != nil {
		return TokenResponse{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.count(path, 0)
		return TokenResponse{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()
	c.count(path, resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		if detail.Detail == "" {
			detail.Detail = "invalid credentials"
		}
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrUnauthenticated, detail.Detail)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenResponse{}, fmt.Errorf("auth request: upstream status %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return token, nil
}
