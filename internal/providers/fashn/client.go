package fashn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

const maxErrorBody = 512

// Options configures the try-on API client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the remote try-on generation API. It keeps no per-job
// state and is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

type runRequest struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category,omitempty"`
}

type runResponse struct {
	ID    string      `json:"id"`
	Error remoteError `json:"error"`
}

type statusResponse struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Output []string    `json:"output"`
	Error  remoteError `json:"error"`
}

// remoteError accepts both `"error": "text"` and
// `"error": {"name": "...", "message": "..."}`.
type remoteError struct {
	Name    string
	Message string
}

func (e *remoteError) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &e.Message)
	}
	var obj struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	e.Name, e.Message = obj.Name, obj.Message
	return nil
}

func (e remoteError) present() bool {
	return strings.TrimSpace(e.Message) != "" || strings.TrimSpace(e.Name) != ""
}

func (e remoteError) text() string {
	msg := strings.TrimSpace(e.Message)
	name := strings.TrimSpace(e.Name)
	switch {
	case msg == "":
		return name
	case name == "":
		return msg
	default:
		return name + ": " + msg
	}
}

// NewClient constructs a client with defaults. A missing API key is not an
// error: requests go out with an empty bearer and fail remotely.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.fashn.ai/v1"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("fashn: invalid base url: %w", err)
	}
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
	if !c.HasCredentials() {
		c.logger.Warn().Str("base_url", baseURL).Msg("fashn: api key is not configured, requests will be rejected")
	}
	return c, nil
}

// HasCredentials reports whether an API key was configured.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Start submits a new try-on job.
func (c *Client) Start(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error) {
	body, err := json.Marshal(runRequest{
		ModelImage:   strings.TrimSpace(req.ModelImage),
		GarmentImage: strings.TrimSpace(req.GarmentImage),
		Category:     req.Category,
	})
	if err != nil {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", "", fmt.Errorf("fashn: encode request: %w", err))
	}

	status, raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/run", body)
	if err != nil {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", "", err)
	}
	var decoded runResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if status < 200 || status >= 300 {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", httpFailureDetail(status, raw, decoded.Error), nil)
	}
	if decodeErr != nil {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", "", fmt.Errorf("fashn: decode response: %w", decodeErr))
	}
	if decoded.Error.present() {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindRemoteRejected, decoded.ID, decoded.Error.text(), nil)
	}
	id := strings.TrimSpace(decoded.ID)
	if id == "" {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", "response did not include a job id", nil)
	}
	c.logger.Debug().
		Str("job_id", id).
		Str("category", req.Category).
		Str("model_image", domain.DescribeImageRef(req.ModelImage)).
		Msg("fashn: job started")
	return domain.JobHandle{ID: id}, nil
}

// Status fetches the current snapshot of a job.
func (c *Client) Status(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error) {
	id := strings.TrimSpace(handle.ID)
	if id == "" {
		return domain.JobStatus{}, domain.NewJobError(domain.ErrorKindPollFailed, "", "job id is required", nil)
	}
	status, raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.JobStatus{}, domain.NewJobError(domain.ErrorKindPollFailed, id, "", err)
	}
	var decoded statusResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if status < 200 || status >= 300 {
		return domain.JobStatus{}, domain.NewJobError(domain.ErrorKindPollFailed, id, httpFailureDetail(status, raw, decoded.Error), nil)
	}
	if decodeErr != nil {
		return domain.JobStatus{}, domain.NewJobError(domain.ErrorKindPollFailed, id, "", fmt.Errorf("fashn: decode status: %w", decodeErr))
	}
	if decoded.Error.present() {
		return domain.JobStatus{}, domain.NewJobError(domain.ErrorKindRemoteRejected, id, decoded.Error.text(), nil)
	}
	phase := domain.ParseJobPhase(decoded.Status)
	c.logger.Debug().Str("job_id", id).Str("status", decoded.Status).Int("outputs", len(decoded.Output)).Msg("fashn: status")
	return domain.NewJobStatus(id, phase, decoded.Output, ""), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("fashn: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fashn: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("fashn: read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func httpFailureDetail(status int, raw []byte, remote remoteError) string {
	if remote.present() {
		return fmt.Sprintf("%s (status %d)", remote.text(), status)
	}
	var generic struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &generic); err == nil {
		if msg := strings.TrimSpace(generic.Message + " " + generic.Detail); msg != "" {
			return fmt.Sprintf("%s (status %d)", msg, status)
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, text)
}
