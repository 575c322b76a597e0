// Package transport talks to the roomdrop server: a JSON HTTP client for the
// REST surface and a websocket watcher for the room event stream. Server
// failures are classified into the shared sentinel taxonomy so callers can
// decide between retrying and giving up with errors.Is alone.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// Client is the HTTP API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client for the server at baseURL authenticating with
// the given bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Room is the wire representation of a room as returned by the server.
type Room struct {
	Code           string `json:"code"`
	Mode           string `json:"mode"`
	Access         string `json:"access"`
	Lifespan       string `json:"lifespan"`
	LastActivityAt string `json:"lastActivityAt"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

// CreateRoomRequest carries the room creation parameters.
type CreateRoomRequest struct {
	Mode     string `json:"mode"`
	Access   string `json:"access"`
	Lifespan string `json:"lifespan"`
	Password string `json:"password,omitempty"`
	TTLHours int    `json:"ttlHours,omitempty"`
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	room := &Room{}
	if err := c.do(ctx, http.MethodPost, "/api/rooms", req, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (c *Client) GetRoom(ctx context.Context, code string) (*Room, error) {
	room := &Room{}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+code, nil, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (c *Client) JoinRoom(ctx context.Context, code, password string) (*Room, error) {
	room := &Room{}
	body := map[string]string{"password": password}
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/join", body, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/api/rooms/"+code, nil, nil)
}

func (c *Client) ListItems(ctx context.Context, code string) ([]protocol.Item, error) {
	var resp struct {
		Items []protocol.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+code+"/items", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) CreateItem(ctx context.Context, code string, req protocol.ItemCreatePayload) (*protocol.Item, error) {
	item := &protocol.Item{}
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/items", req, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) UpdateItem(ctx context.Context, code, id string, req protocol.ItemUpdatePayload) (*protocol.Item, error) {
	item := &protocol.Item{}
	if err := c.do(ctx, http.MethodPut, "/api/rooms/"+code+"/items/"+id, req, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) DeleteItem(ctx context.Context, code, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/rooms/"+code+"/items/"+id, nil, nil)
}

// ItemVersion is one entry of an item's version log.
type ItemVersion struct {
	Version   int64           `json:"version"`
	Content   json.RawMessage `json:"content"`
	Author    string          `json:"author,omitempty"`
	SizeBytes int64           `json:"sizeBytes"`
	CreatedAt string          `json:"createdAt"`
}

// ItemVersions fetches the retained version history, newest first.
func (c *Client) ItemVersions(ctx context.Context, code, id string, limit int) ([]ItemVersion, error) {
	var resp struct {
		Versions []ItemVersion `json:"versions"`
	}
	path := fmt.Sprintf("/api/rooms/%s/items/%s/versions?limit=%d", code, id, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// DownloadURL asks for a presigned URL serving a file item's content.
func (c *Client) DownloadURL(ctx context.Context, code, id string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+code+"/items/"+id+"/download", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// UploadInitRequest starts a chunked file transfer.
type UploadInitRequest struct {
	RoomCode    string `json:"roomCode"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"totalChunks"`
}

// UploadInitResponse returns the transfer id and one presigned target per chunk.
type UploadInitResponse struct {
	UploadID     string   `json:"uploadId"`
	ChunkTargets []string `json:"chunkUploadTargets"`
	ExpiresAt    string   `json:"expiresAt"`
}

func (c *Client) UploadInit(ctx context.Context, req UploadInitRequest) (*UploadInitResponse, error) {
	resp := &UploadInitResponse{}
	if err := c.do(ctx, http.MethodPost, "/api/uploads/init", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PutChunk uploads one chunk's bytes to its presigned target and returns the
// etag the object store assigned.
func (c *Client) PutChunk(ctx context.Context, url string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: chunk upload status %d", common.ErrTransient, resp.StatusCode)
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

// AckState reports upload progress as the server sees it.
type AckState struct {
	UploadedChunks int  `json:"uploadedChunks"`
	TotalChunks    int  `json:"totalChunks"`
	Progress       int  `json:"progress"`
	Complete       bool `json:"complete"`
}

func (c *Client) AckChunk(ctx context.Context, uploadID string, index int, etag string) (*AckState, error) {
	state := &AckState{}
	body := map[string]string{"etag": etag}
	path := fmt.Sprintf("/api/uploads/%s/chunks/%d", uploadID, index)
	if err := c.do(ctx, http.MethodPost, path, body, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) UploadProgress(ctx context.Context, uploadID string) (*AckState, error) {
	state := &AckState{}
	if err := c.do(ctx, http.MethodGet, "/api/uploads/"+uploadID, nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) Finalize(ctx context.Context, uploadID string) (*protocol.Item, error) {
	item := &protocol.Item{}
	if err := c.do(ctx, http.MethodPost, "/api/uploads/"+uploadID+"/finalize", struct{}{}, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) CancelUpload(ctx context.Context, uploadID string) error {
	return c.do(ctx, http.MethodPost, "/api/uploads/"+uploadID+"/cancel", struct{}{}, nil)
}

// Ping checks server reachability. Used as the online probe before a drain.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are retryable by definition.
		return fmt.Errorf("%w: %v", common.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", common.ErrTransient, err)
	}
	return nil
}

// classifyStatus maps an HTTP failure onto the sentinel taxonomy, keeping
// the server's message for surfacing.
func classifyStatus(resp *http.Response) error {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		sentinel = common.ErrValidation
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = common.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		sentinel = common.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		sentinel = common.ErrConflict
	case resp.StatusCode == http.StatusGone:
		sentinel = common.ErrExpired
	case resp.StatusCode == http.StatusPreconditionFailed:
		sentinel = common.ErrIncompleteTransfer
	case resp.StatusCode >= 500:
		sentinel = common.ErrTransient
	default:
		sentinel = common.ErrInternal
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
