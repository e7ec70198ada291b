// Package client fetches book files from a bookfile server and applies the
// decrypt contract: read the key token header, decrypt, hand back the
// packaged archive bytes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookgate/pkg/crypto"
	"bookgate/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Client talks to the bookfile HTTP API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// TokenSource supplies the bearer token; nil fetches anonymously
	TokenSource oauth2.TokenSource
}

// Download is a decrypted book file
type Download struct {
	Data  []byte
	Trial bool
}

type errorBody struct {
	Error           string `json:"error"`
	RequirePurchase bool   `json:"requirePurchase"`
}

type accessEnvelope struct {
	Success bool                 `json:"success"`
	Data    models.AccessSummary `json:"data"`
}

// New creates a client with a default HTTP timeout
func New(baseURL string, ts oauth2.TokenSource) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		TokenSource: ts,
	}
}

// FetchBook downloads and decrypts bookID in the requested mode. An empty
// mode lets the server apply its default.
func (c *Client) FetchBook(ctx context.Context, bookID uuid.UUID, mode models.AccessMode) (*Download, error) {
	query := url.Values{}
	if mode != "" {
		query.Set("mode", string(mode))
	}

	resp, err := c.do(ctx, "/books/"+bookID.String()+"/file", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.Header.Get(crypto.EncryptedHeader) != "true" {
		return nil, fmt.Errorf("response is not marked encrypted")
	}

	plaintext, err := crypto.Open(body, resp.Header.Get(crypto.TokenHeader))
	if err != nil {
		return nil, err
	}

	return &Download{
		Data:  plaintext,
		Trial: resp.Header.Get(crypto.TrialHeader) == "true",
	}, nil
}

// Access returns the caller's access summary for bookID
func (c *Client) Access(ctx context.Context, bookID uuid.UUID) (*models.AccessSummary, error) {
	resp, err := c.do(ctx, "/books/"+bookID.String()+"/access", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var envelope accessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode access summary: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("server reported failure")
	}
	return &envelope.Data, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if c.TokenSource != nil {
		tok, err := c.TokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// decodeError maps a failure response onto the models sentinels
func decodeError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	code := ""
	switch {
	case resp.StatusCode == http.StatusForbidden && body.RequirePurchase:
		sentinel, code = models.ErrPurchaseRequired, models.ErrCodeAccessDenied
	case resp.StatusCode == http.StatusForbidden:
		sentinel, code = models.ErrForbidden, models.ErrCodeAccessDenied
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel, code = models.ErrUnauthorized, models.ErrCodeAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		sentinel, code = models.ErrBookNotFound, "NOT_FOUND"
	case resp.StatusCode == http.StatusBadRequest:
		sentinel, code = models.ErrInvalidInput, "BAD_REQUEST"
	default:
		sentinel, code = models.ErrInternalServer, "SERVER_ERROR"
	}

	return &models.Error{
		Code:    code,
		Message: fmt.Sprintf("%s (HTTP %d)", msg, resp.StatusCode),
		Err:     sentinel,
	}
}
