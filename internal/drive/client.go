// Package drive is a stateless pass-through adapter for the Google
// Drive v3 REST API. It holds no authoritative state: every object it
// returns was confirmed to exist in Drive at the time of the call.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/planhub/planhub/internal/core"
	"github.com/planhub/planhub/internal/telemetry"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"
	defaultTimeout       = 30 * time.Second

	// DefaultMaxUploadBytes caps upload_file payloads unless overridden.
	DefaultMaxUploadBytes = 10 << 20

	folderMIMEType = "application/vnd.google-apps.folder"

	maxListLimit   = 100
	maxSearchLimit = 50
	maxNameLength  = 255

	fileFields = "id, name, mimeType, size, parents, createdTime, modifiedTime, webViewLink, trashed"
)

// StorageObject is Drive's view of a file or folder. Drive assigns the
// ID; timestamps and sizes come from Drive, never from this adapter.
type StorageObject struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mimeType"`
	Size         int64     `json:"size,string,omitempty"`
	Parents      []string  `json:"parents,omitempty"`
	CreatedTime  time.Time `json:"createdTime,omitzero"`
	ModifiedTime time.Time `json:"modifiedTime,omitzero"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
	Trashed      bool      `json:"trashed,omitempty"`
}

// IsFolder reports whether the object is a Drive folder.
func (o *StorageObject) IsFolder() bool {
	return o.MIMEType == folderMIMEType
}

// Config configures a Client.
type Config struct {
	Tokens TokenSource

	// BaseURL and UploadBaseURL default to the public Drive API;
	// tests point them at a local server.
	BaseURL       string
	UploadBaseURL string

	// MaxUploadBytes caps UploadFile payloads. Defaults to
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// Timeout bounds every remote call. Defaults to 30s.
	Timeout time.Duration
}

// Client talks to the Drive API. It holds only the credential handle;
// it is safe for concurrent use.
type Client struct {
	tokens         TokenSource
	httpClient     *http.Client
	baseURL        string
	uploadBaseURL  string
	maxUploadBytes int64
}

// NewClient creates a Drive client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = defaultUploadBaseURL
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		tokens:         cfg.Tokens,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		uploadBaseURL:  strings.TrimRight(cfg.UploadBaseURL, "/"),
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// MaxUploadBytes returns the configured upload ceiling.
func (c *Client) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

type fileList struct {
	Files         []*StorageObject `json:"files"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

// ListFiles lists files, optionally constrained by a Drive query and a
// parent folder. Trashed files are always excluded. Ordering is
// whatever Drive returns for the query; this adapter neither sorts nor
// dedupes. Never returns more than limit objects.
func (c *Client) ListFiles(ctx context.Context, query, folderID string, limit int) ([]*StorageObject, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, core.Errorf(core.KindInvalidArgument, "limit must be between 1 and %d", maxListLimit)
	}

	var parts []string
	if query != "" {
		parts = append(parts, query)
	}
	if folderID != "" {
		// folderID lands inside a quoted query literal, same rule as
		// search terms.
		if strings.ContainsAny(folderID, `'\`) {
			return nil, core.Errorf(core.KindInvalidArgument, "folder_id must not contain quotes or backslashes")
		}
		parts = append(parts, fmt.Sprintf("'%s' in parents", folderID))
	}
	parts = append(parts, "trashed=false")

	params := url.Values{}
	params.Set("q", strings.Join(parts, " and "))
	params.Set("pageSize", fmt.Sprint(limit))
	params.Set("fields", "nextPageToken, files("+fileFields+")")

	var list fileList
	if err := c.getJSON(ctx, c.baseURL+"/files?"+params.Encode(), &list); err != nil {
		return nil, err
	}
	return list.Files, nil
}

// SearchFiles finds files whose name contains term. The search itself
// is delegated to Drive.
func (c *Client) SearchFiles(ctx context.Context, term string, limit int) ([]*StorageObject, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "search_term is required")
	}
	if strings.ContainsAny(term, `'\`) {
		return nil, core.Errorf(core.KindInvalidArgument, "search_term must not contain quotes or backslashes")
	}
	if limit <= 0 || limit > maxSearchLimit {
		return nil, core.Errorf(core.KindInvalidArgument, "limit must be between 1 and %d", maxSearchLimit)
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("name contains '%s' and trashed=false", term))
	params.Set("pageSize", fmt.Sprint(limit))
	params.Set("fields", "files("+fileFields+")")

	var list fileList
	if err := c.getJSON(ctx, c.baseURL+"/files?"+params.Encode(), &list); err != nil {
		return nil, err
	}
	return list.Files, nil
}

// GetFile fetches one object by ID.
func (c *Client) GetFile(ctx context.Context, fileID string) (*StorageObject, error) {
	if fileID == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "file_id is required")
	}

	params := url.Values{}
	params.Set("fields", fileFields)

	obj := &StorageObject{}
	if err := c.getJSON(ctx, c.baseURL+"/files/"+url.PathEscape(fileID)+"?"+params.Encode(), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateFolder creates a folder unconditionally and returns the new
// object. Drive allows duplicate folder names, and this adapter does
// NOT dedupe: calling twice with the same name yields two distinct
// folders. Callers wanting idempotent creation must check for an
// existing folder first via ListFiles or SearchFiles.
func (c *Client) CreateFolder(ctx context.Context, name, parentFolderID string) (*StorageObject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "name is required")
	}
	if len(name) > maxNameLength {
		return nil, core.Errorf(core.KindInvalidArgument, "name must be at most %d characters", maxNameLength)
	}

	metadata := map[string]any{
		"name":     name,
		"mimeType": folderMIMEType,
	}
	if parentFolderID != "" {
		metadata["parents"] = []string{parentFolderID}
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}

	params := url.Values{}
	params.Set("fields", fileFields)

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/files?"+params.Encode(), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeObject(resp)
}

// UploadFile uploads content as a new file via a multipart request.
// The remote store assigns the ID; uploading the same name twice
// creates two files.
func (c *Client) UploadFile(ctx context.Context, name string, content []byte, mimeType, folderID string) (*StorageObject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "name is required")
	}
	if len(name) > maxNameLength {
		return nil, core.Errorf(core.KindInvalidArgument, "name must be at most %d characters", maxNameLength)
	}
	if mimeType == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "mime_type is required")
	}
	if int64(len(content)) > c.maxUploadBytes {
		return nil, core.Errorf(core.KindPayloadTooLarge, "content is %d bytes, limit is %d", len(content), c.maxUploadBytes)
	}

	metadata := map[string]any{
		"name":     name,
		"mimeType": mimeType,
	}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}
	if _, err := mediaPart.Write(content); err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}
	if err := mw.Close(); err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}

	params := url.Values{}
	params.Set("uploadType", "multipart")
	params.Set("fields", fileFields)

	contentType := "multipart/related; boundary=" + mw.Boundary()
	resp, err := c.do(ctx, http.MethodPost, c.uploadBaseURL+"/files?"+params.Encode(), &buf, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeObject(resp)
}

// DeleteFile permanently deletes a file. Drive's files.delete bypasses
// the trash, so the deletion is terminal; there is nothing to restore.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if fileID == "" {
		return core.Errorf(core.KindInvalidArgument, "file_id is required")
	}

	resp, err := c.do(ctx, http.MethodDelete, c.baseURL+"/files/"+url.PathEscape(fileID), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// do issues an authenticated request and maps failures into the closed
// error-kind set. A non-2xx status never escapes as a raw error.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		var kinded *core.Error
		if errors.As(err, &kinded) {
			return nil, err
		}
		return nil, core.WrapError(core.KindUnauthenticated, "drive credential unavailable", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.IncRemoteAPIError("drive", 0)
		return nil, core.WrapError(core.KindUnavailable, "drive unreachable", err)
	}

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		telemetry.IncRemoteAPIError("drive", resp.StatusCode)
		return nil, mapStatus(resp.StatusCode, string(detail))
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return core.WrapError(core.KindUnavailable, "drive returned a malformed response", err)
	}
	return nil
}

func decodeObject(resp *http.Response) (*StorageObject, error) {
	obj := &StorageObject{}
	if err := json.NewDecoder(resp.Body).Decode(obj); err != nil {
		return nil, core.WrapError(core.KindUnavailable, "drive returned a malformed response", err)
	}
	return obj, nil
}

// mapStatus folds a Drive HTTP status into the closed error-kind set.
// Only 429 and 5xx are retryable; everything else is terminal for the
// request as given.
func mapStatus(status int, detail string) *core.Error {
	switch {
	case status == http.StatusUnauthorized:
		return &core.Error{Kind: core.KindUnauthenticated, Message: "drive rejected the access token", Err: errors.New(detail)}
	case status == http.StatusForbidden:
		return &core.Error{Kind: core.KindUnauthenticated, Message: "drive denied access to this resource", Err: errors.New(detail)}
	case status == http.StatusNotFound:
		return &core.Error{Kind: core.KindNotFound, Message: "no such file or folder in drive", Err: errors.New(detail)}
	case status == http.StatusRequestEntityTooLarge:
		return &core.Error{Kind: core.KindPayloadTooLarge, Message: "drive rejected the payload as too large", Err: errors.New(detail)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &core.Error{Kind: core.KindUnavailable, Message: fmt.Sprintf("drive temporarily unavailable (HTTP %d)", status), Err: errors.New(detail)}
	default:
		return &core.Error{Kind: core.KindInternal, Message: "internal error", Err: fmt.Errorf("drive HTTP %d: %s", status, detail)}
	}
}
