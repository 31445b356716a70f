// Package report renders printable documents through a Gotenberg service.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable reports that the rendering service could not be reached or
// answered with a server error.
var ErrUnavailable = errors.New("report: renderer unavailable")

// PageOptions sets the paper of a rendered document, in inches.
type PageOptions struct {
	PaperWidth   float64
	PaperHeight  float64
	MarginTop    float64
	MarginBottom float64
	MarginLeft   float64
	MarginRight  float64
}

// ReceiptPage is an A5 portrait page.
var ReceiptPage = PageOptions{
	PaperWidth:   5.83,
	PaperHeight:  8.27,
	MarginTop:    0.4,
	MarginBottom: 0.4,
	MarginLeft:   0.4,
	MarginRight:  0.4,
}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	page       PageOptions
}

// NewClient constructs a client rendering ReceiptPage documents.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		page: ReceiptPage,
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// RenderHTML converts an HTML document into a PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	// The chromium route requires the entry document to be index.html.
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	for field, v := range map[string]float64{
		"paperWidth":   c.page.PaperWidth,
		"paperHeight":  c.page.PaperHeight,
		"marginTop":    c.page.MarginTop,
		"marginBottom": c.page.MarginBottom,
		"marginLeft":   c.page.MarginLeft,
		"marginRight":  c.page.MarginRight,
	} {
		if v <= 0 {
			continue
		}
		if err := writer.WriteField(field, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: render status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("report: render rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}
