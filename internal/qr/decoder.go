package qr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NoCodeDetected is the text the QR service reports when a frame has no code.
const NoCodeDetected = "No QR code detected"

// DefaultURL is where the camera-side QR service listens.
const DefaultURL = "http://127.0.0.1:5000/readQR"

// Decoder reads the current QR code. An empty string or NoCodeDetected means
// nothing was found.
type Decoder interface {
	Decode(ctx context.Context) (string, error)
}

// HTTPDecoder calls the external QR service over HTTP.
type HTTPDecoder struct {
	url    string
	client *http.Client
}

func NewHTTPDecoder(url string, timeout time.Duration) *HTTPDecoder {
	if url == "" {
		url = DefaultURL
	}
	return &HTTPDecoder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type readResponse struct {
	QRText string `json:"qr_text"`
	Error  string `json:"error"`
}

func (d *HTTPDecoder) Decode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, nil)
	if err != nil {
		return "", fmt.Errorf("build qr request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call qr service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read qr response: %w", err)
	}

	var payload readResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && payload.Error != "" {
			return "", fmt.Errorf("qr service error: %s", payload.Error)
		}
		return "", fmt.Errorf("qr service error: %s", resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode qr response: %w", decodeErr)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("qr service error: %s", payload.Error)
	}
	return strings.TrimSpace(payload.QRText), nil
}

// Detected reports whether text holds an actual decoded code.
func Detected(text string) bool {
	return text != "" && text != NoCodeDetected
}
