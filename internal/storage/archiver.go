package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

const maxResultBytes = 32 << 20

// ResultArchiver copies succeeded try-on results into a FileStore under
// results/{panel}/{job}.{ext}. It ignores every other attempt update.
type ResultArchiver struct {
	store  *FileStore
	client *http.Client
	logger infra.Logger
}

func NewResultArchiver(store *FileStore, client *http.Client, logger *infra.Logger) *ResultArchiver {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	l := infra.DiscardLogger()
	if logger != nil {
		l = *logger
	}
	return &ResultArchiver{store: store, client: client, logger: l}
}

// Record implements the tracker recorder hook.
func (a *ResultArchiver) Record(ctx context.Context, attempt domain.Attempt) error {
	if attempt.Phase != "succeeded" || strings.TrimSpace(attempt.Result) == "" {
		return nil
	}
	key, err := a.Archive(ctx, attempt.PanelID, attempt.JobID, attempt.Result)
	if err != nil {
		return err
	}
	a.logger.Info().Str("panel_id", attempt.PanelID).Str("job_id", attempt.JobID).Str("key", key).Msg("archiver: result saved")
	return nil
}

// Archive fetches ref (a URL or data URI) and stores it. It returns the key.
func (a *ResultArchiver) Archive(ctx context.Context, panelID, jobID, ref string) (string, error) {
	if jobID == "" {
		return "", errors.New("archiver: job id is required")
	}
	data, contentType, err := a.fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	if panelID == "" {
		panelID = "cli"
	}
	key := path.Join("results", panelID, jobID+"."+extensionFor(contentType, ref))
	return a.store.Put(ctx, key, data)
}

func (a *ResultArchiver) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("archiver: build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("archiver: download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("archiver: download result: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, "", fmt.Errorf("archiver: read result: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func decodeDataURI(ref string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(ref, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("archiver: unsupported data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("archiver: decode data uri: %w", err)
	}
	contentType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return data, contentType, nil
}

func extensionFor(contentType, ref string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	}
	if !strings.HasPrefix(ref, "data:") {
		base := ref
		if i := strings.IndexAny(base, "?#"); i >= 0 {
			base = base[:i]
		}
		if ext := strings.TrimPrefix(path.Ext(base), "."); ext != "" && len(ext) <= 4 {
			return strings.ToLower(ext)
		}
	}
	return "bin"
}
