package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

const (
	ProviderFashn = "fashn"
	ProviderImgBB = "imgbb"
)

// ErrUnknownProvider is returned for providers the store does not manage.
var ErrUnknownProvider = errors.New("credentials: unknown provider")

// Store reads and writes provider API keys kept in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// ParseProvider normalizes a provider name and rejects unknown ones.
func ParseProvider(raw string) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(raw))
	switch provider {
	case ProviderFashn, ProviderImgBB:
		return provider, nil
	case "":
		return ProviderFashn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores key for provider, replacing any previous value.
func (s *Store) SetToken(ctx context.Context, provider, key string) error {
	provider, err := ParseProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	raw, err := json.Marshal(map[string]any{"source": "cli"})
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, key, raw)
	return err
}

// ResolveKey prefers the configured key and falls back to the stored one.
func (s *Store) ResolveKey(ctx context.Context, provider, configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}
