package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"tryon/internal/adapter/repo"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
)

var providerEnv = map[string]string{
	credentials.ProviderFashn: "FASHN_API_KEY",
	credentials.ProviderImgBB: "IMGBB_API_KEY",
}

// APIKeySetAction stores a provider key so servers without the env variable
// can still authenticate.
func APIKeySetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	provider, err := credentials.ParseProvider(cmd.String("provider"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	key := strings.TrimSpace(cmd.String("key"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv(providerEnv[provider]))
	}
	if key == "" {
		return cli.Exit(fmt.Sprintf("%s API key is required via --key or %s", provider, providerEnv[provider]), 1)
	}
	if !cfg.HasDatabase() {
		return cli.Exit("DATABASE_URL is required", 1)
	}

	logger := infra.NewLogger("cli")
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	if err := repo.NewAttemptRepository(runner).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := credentials.NewStore(runner).SetToken(ctx, provider, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	fmt.Fprintf(os.Stdout, "%s API key stored\n", provider)
	return nil
}
