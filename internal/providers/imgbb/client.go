package imgbb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"tryon/internal/infra"
)

// ErrMissingAPIKey indicates that the uploader was configured without credentials.
var ErrMissingAPIKey = errors.New("imgbb: api key is required")

var dataURIPrefix = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// Options configures the image host uploader.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client uploads inline images to ImgBB so the generation API can fetch them
// by URL.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

type uploadResponse struct {
	Data struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.imgbb.com/1"
	}
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// IsInline reports whether ref is a base64 image data URI.
func IsInline(ref string) bool {
	return dataURIPrefix.MatchString(strings.TrimSpace(ref))
}

// Inline reports whether Stage would upload ref.
func (c *Client) Inline(ref string) bool {
	return IsInline(ref)
}

// Stage uploads ref when it is an inline image and returns the hosted URL.
// Any other reference is returned unchanged.
func (c *Client) Stage(ctx context.Context, ref string) (string, error) {
	if !IsInline(ref) {
		return ref, nil
	}
	return c.Upload(ctx, ref)
}

// Upload posts a base64 image (with or without data URI prefix) and returns
// its public URL.
func (c *Client) Upload(ctx context.Context, image string) (string, error) {
	payload := dataURIPrefix.ReplaceAllString(strings.TrimSpace(image), "")
	if payload == "" {
		return "", errors.New("imgbb: image is required")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("key", c.apiKey); err != nil {
		return "", fmt.Errorf("imgbb: build form: %w", err)
	}
	if err := form.WriteField("image", payload); err != nil {
		return "", fmt.Errorf("imgbb: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("imgbb: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", fmt.Errorf("imgbb: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("imgbb: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("imgbb: read response: %w", err)
	}
	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("imgbb: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("imgbb: decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !decoded.Success {
		if msg := strings.TrimSpace(decoded.Error.Message); msg != "" {
			return "", fmt.Errorf("imgbb: %s (status %d)", msg, resp.StatusCode)
		}
		return "", fmt.Errorf("imgbb: upload failed (status %d)", resp.StatusCode)
	}
	hosted := strings.TrimSpace(decoded.Data.URL)
	if hosted == "" {
		return "", errors.New("imgbb: empty image url")
	}
	c.logger.Debug().Str("url", hosted).Int("bytes", len(payload)).Msg("imgbb: image uploaded")
	return hosted, nil
}
