package fashn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"tryon/internal/domain"
)

type stubTransport struct {
	mu        sync.Mutex
	responses map[string]responseStub
	requests  []*http.Request
	bodies    [][]byte
	err       error
}

type responseStub struct {
	status int
	body   string
}

func newStubTransport() *stubTransport {
	return &stubTransport{responses: map[string]responseStub{}}
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)
	if s.err != nil {
		return nil, s.err
	}
	stub, ok := s.responses[req.Method+" "+req.URL.Path]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("not found")),
		}, nil
	}
	return &http.Response{
		StatusCode: stub.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(stub.body))),
	}, nil
}

func (s *stubTransport) set(method, path string, status int, body string) {
	s.responses[method+" "+path] = responseStub{status: status, body: body}
}

func newTestClient(t *testing.T, transport *stubTransport, key string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     key,
		BaseURL:    "https://api.example.com/v1/",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jobErrorKind(t *testing.T, err error) *domain.JobError {
	t.Helper()
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *domain.JobError, got %T (%v)", err, err)
	}
	return jobErr
}

func TestStartSendsPayloadAndBearer(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodPost, "/v1/run", http.StatusOK, `{"id":"abc","error":null}`)
	client := newTestClient(t, transport, "secret")

	handle, err := client.Start(context.Background(), domain.JobRequest{
		ModelImage:   "https://x/model.png",
		GarmentImage: "https://x/garment.png",
		Category:     "tops",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if handle.ID != "abc" {
		t.Fatalf("handle id = %q, want abc", handle.ID)
	}
	req := transport.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content-type = %q", got)
	}
	var payload map[string]string
	if err := json.Unmarshal(transport.bodies[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model_image"] != "https://x/model.png" || payload["garment_image"] != "https://x/garment.png" || payload["category"] != "tops" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestStartErrorFieldTakesPrecedenceOverStatus(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodPost, "/v1/run", http.StatusOK, `{"id":"abc","error":"invalid image"}`)
	client := newTestClient(t, transport, "secret")

	_, err := client.Start(context.Background(), domain.JobRequest{ModelImage: "m", GarmentImage: "g"})
	jobErr := jobErrorKind(t, err)
	if jobErr.Kind != domain.ErrorKindRemoteRejected {
		t.Fatalf("kind = %s, want remote_rejected", jobErr.Kind)
	}
	if jobErr.Message() != "invalid image" {
		t.Fatalf("message = %q, want invalid image", jobErr.Message())
	}
}

func TestStartErrorObject(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodPost, "/v1/run", http.StatusOK, `{"id":"","error":{"name":"ImageLoadError","message":"cannot fetch garment"}}`)
	client := newTestClient(t, transport, "secret")

	_, err := client.Start(context.Background(), domain.JobRequest{ModelImage: "m", GarmentImage: "g"})
	jobErr := jobErrorKind(t, err)
	if jobErr.Kind != domain.ErrorKindRemoteRejected {
		t.Fatalf("kind = %s, want remote_rejected", jobErr.Kind)
	}
	if jobErr.Message() != "ImageLoadError: cannot fetch garment" {
		t.Fatalf("message = %q", jobErr.Message())
	}
}

func TestStartNon2xxIsStartFailed(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodPost, "/v1/run", http.StatusUnauthorized, `{"error":"Unauthorized","message":"invalid api key"}`)
	client := newTestClient(t, transport, "")

	_, err := client.Start(context.Background(), domain.JobRequest{ModelImage: "m", GarmentImage: "g"})
	jobErr := jobErrorKind(t, err)
	if jobErr.Kind != domain.ErrorKindStartFailed {
		t.Fatalf("kind = %s, want start_failed", jobErr.Kind)
	}
	if !strings.Contains(jobErr.Message(), "401") {
		t.Fatalf("message %q should mention the status", jobErr.Message())
	}
	if got := transport.requests[0].Header.Get("Authorization"); got != "Bearer " {
		t.Fatalf("missing key should send an empty bearer, got %q", got)
	}
}

func TestStartTransportFailure(t *testing.T) {
	transport := newStubTransport()
	transport.err = errors.New("dial tcp: connection refused")
	client := newTestClient(t, transport, "secret")

	_, err := client.Start(context.Background(), domain.JobRequest{ModelImage: "m", GarmentImage: "g"})
	jobErr := jobErrorKind(t, err)
	if jobErr.Kind != domain.ErrorKindStartFailed {
		t.Fatalf("kind = %s, want start_failed", jobErr.Kind)
	}
	if !errors.Is(err, transport.err) {
		t.Fatalf("expected transport error to be wrapped, got %v", err)
	}
}

func TestStartMissingID(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodPost, "/v1/run", http.StatusOK, `{"error":null}`)
	client := newTestClient(t, transport, "secret")

	_, err := client.Start(context.Background(), domain.JobRequest{ModelImage: "m", GarmentImage: "g"})
	if jobErr := jobErrorKind(t, err); jobErr.Kind != domain.ErrorKindStartFailed {
		t.Fatalf("kind = %s, want start_failed", jobErr.Kind)
	}
}

func TestStatusMapsPhasesAndOutputs(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodGet, "/v1/status/abc", http.StatusOK,
		`{"id":"abc","status":"completed","output":["https://x/result.png"],"error":null}`)
	client := newTestClient(t, transport, "secret")

	status, err := client.Status(context.Background(), domain.JobHandle{ID: "abc"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Phase != domain.JobPhaseCompleted {
		t.Fatalf("phase = %s, want completed", status.Phase)
	}
	if len(status.Outputs) != 1 || status.Outputs[0] != "https://x/result.png" {
		t.Fatalf("outputs = %v", status.Outputs)
	}
	if got := transport.requests[0].Header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("authorization = %q", got)
	}
}

func TestStatusQueuedHasNoOutputs(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodGet, "/v1/status/abc", http.StatusOK, `{"id":"abc","status":"in_queue","output":[]}`)
	client := newTestClient(t, transport, "secret")

	status, err := client.Status(context.Background(), domain.JobHandle{ID: "abc"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Phase != domain.JobPhaseQueued || status.Terminal() {
		t.Fatalf("status = %+v, want non-terminal in_queue", status)
	}
}

func TestStatusErrorFieldIsRemoteRejected(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodGet, "/v1/status/abc", http.StatusOK,
		`{"id":"abc","status":"processing","error":{"name":"PipelineError","message":"generation failed"}}`)
	client := newTestClient(t, transport, "secret")

	_, err := client.Status(context.Background(), domain.JobHandle{ID: "abc"})
	jobErr := jobErrorKind(t, err)
	if jobErr.Kind != domain.ErrorKindRemoteRejected || jobErr.JobID != "abc" {
		t.Fatalf("error = %+v, want remote_rejected for abc", jobErr)
	}
}

func TestStatusHTTPFailureIsPollFailed(t *testing.T) {
	transport := newStubTransport()
	transport.set(http.MethodGet, "/v1/status/abc", http.StatusBadGateway, `<html>bad gateway</html>`)
	client := newTestClient(t, transport, "secret")

	_, err := client.Status(context.Background(), domain.JobHandle{ID: "abc"})
	if jobErr := jobErrorKind(t, err); jobErr.Kind != domain.ErrorKindPollFailed {
		t.Fatalf("kind = %s, want poll_failed", jobErr.Kind)
	}
}

func TestStatusEscapesID(t *testing.T) {
	transport := newStubTransport()
	client := newTestClient(t, transport, "secret")

	_, _ = client.Status(context.Background(), domain.JobHandle{ID: "a/b"})
	if got := transport.requests[0].URL.EscapedPath(); got != "/v1/status/a%2Fb" {
		t.Fatalf("escaped path = %q", got)
	}
}
