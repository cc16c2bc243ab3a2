// Package apiclient talks to the HomeOnMap HTTP API. It implements the
// provider, uploader, creator and source interfaces of the client core, so
// the same session, form and map code runs against a remote server.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/models"
)

// Client calls the API with the stored bearer token.
type Client struct {
	baseURL    string
	tokens     TokenStore
	httpClient *http.Client
}

func New(baseURL string, tokens TokenStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens, httpClient: httpClient}
}

// decodeError turns a non-2xx response into the error value the server
// produced.
func decodeError(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body apperr.Body
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return apperr.FromCode(body.Code, body.Field, body.Error)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(raw), "application/json", out)
}

// GetSession returns the identity behind the stored token, or nil when
// there is no token or the server no longer knows it.
func (c *Client) GetSession(ctx context.Context) (*models.Identity, error) {
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		return nil, err
	}
	var id models.Identity
	if err := c.getJSON(ctx, "/api/auth/me", &id); err != nil {
		if errors.Is(err, apperr.ErrAuthRequired) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// SignInWithRedirect returns the browser URL that starts a CLI login.
func (c *Client) SignInWithRedirect(_ context.Context, returnTo string) (string, error) {
	q := url.Values{}
	q.Set("mode", models.ModeCLI)
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	return c.baseURL + "/api/auth/login?" + q.Encode(), nil
}

// SignOut revokes the server session and forgets the token.
func (c *Client) SignOut(ctx context.Context) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if token != "" {
		if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, "", nil); err != nil && !errors.Is(err, apperr.ErrAuthRequired) {
			return err
		}
	}
	return c.tokens.Clear()
}

// List fetches listings. A set OwnerID selects the caller's own listings.
func (c *Client) List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error) {
	path := "/api/listings"
	if f.OwnerID != "" {
		path = "/api/listings/mine"
	}
	q := url.Values{}
	if f.Role != "" {
		q.Set("role", f.Role)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Listing
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Listing{}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := c.getJSON(ctx, "/api/listings/"+url.PathEscape(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create posts a listing. The server takes the owner from the token; owner
// is only checked for presence.
func (c *Client) Create(ctx context.Context, fields models.ListingFields, owner models.Identity) (*models.Listing, error) {
	if owner.ID == "" {
		return nil, apperr.ErrAuthRequired
	}
	var l models.Listing
	if err := c.sendJSON(ctx, http.MethodPost, "/api/listings", fields, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete removes a listing. Rights are decided by the server.
func (c *Client) Delete(ctx context.Context, id string, _ models.Identity) error {
	return c.do(ctx, http.MethodDelete, "/api/listings/"+url.PathEscape(id), nil, "", nil)
}

// Upload sends f as the multipart "image" field and returns its URL.
func (c *Client) Upload(ctx context.Context, f blob.File) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, f.Name))
	hdr.Set("Content-Type", f.ContentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", &apperr.UploadError{Reason: "build request", Err: err}
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", &apperr.UploadError{Reason: "build request", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &apperr.UploadError{Reason: "build request", Err: err}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/uploads", &buf, mw.FormDataContentType(), &out); err != nil {
		var ue *apperr.UploadError
		if errors.As(err, &ue) {
			return "", err
		}
		return "", &apperr.UploadError{Reason: "upload request failed", Err: err}
	}
	return out.URL, nil
}

// Enhance asks the server to rewrite a description.
func (c *Client) Enhance(ctx context.Context, text string) (string, error) {
	var out struct {
		EnhancedText string `json:"enhanced_text"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/enhance", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.EnhancedText, nil
}

// Events returns the admin audit trail.
func (c *Client) Events(ctx context.Context, limit int) ([]models.ListingEvent, error) {
	path := "/api/admin/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.ListingEvent
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
