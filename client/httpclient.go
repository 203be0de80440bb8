package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dfryer1193/roomshot/api"
)

// ErrTransport marks failures to reach the relay server at all.
var ErrTransport = errors.New("transport failure")

// StatusError is a non-success reply from the relay server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server replied %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server replied %d: %s", e.Code, e.Message)
}

// Screen is one response to a conditional pull.
type Screen struct {
	StatusCode int
	ETag       string
	Body       []byte
}

// Client talks to the relay HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a relay client. A zero timeout leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateRoom asks the server for a new room and returns its id.
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-room", nil)
	if err != nil {
		return "", err
	}

	var resp api.CreateRoomResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", err
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("server returned an empty room id")
	}
	return resp.RoomID, nil
}

// PushScreenshot uploads content as the room's new image.
func (c *Client) PushScreenshot(ctx context.Context, roomID string, content []byte) (*api.ScreenshotResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(api.FormFieldFile, "screenshot.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.WriteField(api.FormFieldRoomID, roomID); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/screenshot", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.ScreenshotResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchScreen pulls the room's image, sending etag as If-None-Match when set.
// Any HTTP status is returned as a Screen; only transport problems are errors.
func (c *Client) FetchScreen(ctx context.Context, roomID string, etag string) (*Screen, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/screen/"+url.PathEscape(roomID), nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	return &Screen{
		StatusCode: res.StatusCode,
		ETag:       res.Header.Get("ETag"),
		Body:       body,
	}, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return &StatusError{Code: res.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
