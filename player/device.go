// Package player owns the clip queue and the playback state machine driving
// a local clip-playback device.
package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/clip-tender/twitchapi"
)

// Device is the playback surface. Host stages a clip, Play starts it, Stop
// tears it down. All calls are synchronous from the engine's point of view.
type Device interface {
	Host(ctx context.Context, clip *twitchapi.ClipData) error
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HTTPDevice drives a playback device over its local HTTP API.
type HTTPDevice struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPDevice(baseURL string) *HTTPDevice {
	return &HTTPDevice{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPDevice) http() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d *HTTPDevice) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("device %s: status %d: %s", path, resp.StatusCode, string(b))
	}
	return nil
}

func (d *HTTPDevice) Host(ctx context.Context, clip *twitchapi.ClipData) error {
	return d.post(ctx, "/host", map[string]any{
		"id":               clip.ID,
		"url":              clip.URL,
		"embed_url":        clip.EmbedURL,
		"title":            clip.Title,
		"duration_seconds": clip.Duration,
	})
}

func (d *HTTPDevice) Play(ctx context.Context) error {
	return d.post(ctx, "/play", nil)
}

func (d *HTTPDevice) Stop(ctx context.Context) error {
	return d.post(ctx, "/stop", nil)
}
