// Package client is a Go client for the asset registry HTTP API.
package client

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

	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
)

const defaultTimeout = 30 * time.Second

// Client calls a registry server. Mutations need a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry url %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode  int
	Code        dErrors.Code
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("registry: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("registry: %s: %s", e.Code, e.Description)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code dErrors.Code) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// RegisterInput names the asset either by id or by a name to hash.
type RegisterInput struct {
	AssetID  string `json:"asset_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Metadata string `json:"metadata"`
}

// EventsPage is one page of the global event log.
type EventsPage struct {
	Events []models.Event `json:"events"`
	Next   int64          `json:"next"`
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*models.Receipt, error) {
	var out models.Receipt
	if err := c.do(ctx, http.MethodPost, "/assets", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, assetID domain.AssetID) (*models.AssetRecord, error) {
	var out models.AssetRecord
	if err := c.do(ctx, http.MethodGet, assetPath(assetID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Exists(ctx context.Context, assetID domain.AssetID) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, assetPath(assetID, "/exists"), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) Owner(ctx context.Context, assetID domain.AssetID) (domain.Identity, error) {
	var out struct {
		Owner domain.Identity `json:"owner"`
	}
	if err := c.do(ctx, http.MethodGet, assetPath(assetID, "/owner"), nil, &out); err != nil {
		return "", err
	}
	return out.Owner, nil
}

func (c *Client) Transfer(ctx context.Context, assetID domain.AssetID, newOwner domain.Identity) (*models.Receipt, error) {
	body := map[string]string{"new_owner": newOwner.String()}
	var out models.Receipt
	if err := c.do(ctx, http.MethodPost, assetPath(assetID, "/transfer"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMetadata(ctx context.Context, assetID domain.AssetID, metadata string) (*models.Receipt, error) {
	body := map[string]string{"metadata": metadata}
	var out models.Receipt
	if err := c.do(ctx, http.MethodPut, assetPath(assetID, "/metadata"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OwnedAssets(ctx context.Context, owner domain.Identity) ([]domain.AssetID, error) {
	var out struct {
		AssetIDs []domain.AssetID `json:"asset_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/owners/"+url.PathEscape(owner.String())+"/assets", nil, &out); err != nil {
		return nil, err
	}
	return out.AssetIDs, nil
}

func (c *Client) History(ctx context.Context, assetID domain.AssetID) ([]models.Event, error) {
	var out struct {
		Events []models.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, assetPath(assetID, "/history"), nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Events fetches up to limit events after the given sequence. A zero limit
// uses the server default.
func (c *Client) Events(ctx context.Context, after int64, limit int) (*EventsPage, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out EventsPage
	if err := c.do(ctx, http.MethodGet, "/events?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func assetPath(assetID domain.AssetID, suffix string) string {
	return "/assets/" + assetID.String() + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: dErrors.CodeInternal}
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Code = dErrors.Code(body.Error)
		apiErr.Description = body.ErrorDescription
	} else {
		apiErr.Description = strings.TrimSpace(string(raw))
	}
	return apiErr
}
