package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/config"
	"github.com/vnmchuo/space-explorer/internal/governor"
	"github.com/vnmchuo/space-explorer/pkg/ratelimit"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider configuration and rate limits",
	Long: `Show which providers are configured, the rate-limit policy per operation
group and, when a shared store is configured, the provider quota state.
Credential values are never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		quotas := map[string]string{}
		if cfg.RedisURL != "" && cfg.ProviderQuotaPerMinute > 0 {
			quotas = quotaState(cmd.Context(), cfg)
		}
		return renderStatus(cmd.OutOrStdout(), cfg, quotas)
	},
}

func renderStatus(w io.Writer, cfg *config.Config, quotas map[string]string) error {
	configured := newClients(cfg, zap.NewNop(), nil).configured()

	providers := table.NewWriter()
	providers.SetStyle(table.StyleRounded)
	providers.AppendHeader(table.Row{"Provider", "Configured", "Quota"})
	for _, name := range []string{"n2yo", "gemini", "tts"} {
		quota := quotas[name]
		if quota == "" {
			quota = "-"
		}
		providers.AppendRow(table.Row{name, yesNo(configured[name]), quota})
	}
	providers.AppendFooter(table.Row{"mock mode", yesNo(cfg.MockMode), ""})

	limits := table.NewWriter()
	limits.SetStyle(table.StyleRounded)
	limits.AppendHeader(table.Row{"Group", "Windows"})
	for _, group := range []governor.Group{governor.GroupPosition, governor.GroupChat, governor.GroupSpeech} {
		var described []string
		for _, win := range cfg.RatePolicy[group] {
			described = append(described, win.String())
		}
		limits.AppendRow(table.Row{string(group), strings.Join(described, ", ")})
	}
	limits.AppendFooter(table.Row{"store", cfg.RateLimitStore()})

	_, err := fmt.Fprintf(w, "%s\n%s\n", providers.Render(), limits.Render())
	return err
}

// quotaState reports whether each metered provider has budget left. Store
// errors are shown rather than returned.
func quotaState(ctx context.Context, cfg *config.Config) map[string]string {
	if ctx == nil {
		ctx = context.Background()
	}
	state := map[string]string{}
	rdb, err := dialRedis(ctx, cfg.RedisURL)
	if err != nil {
		state["gemini"], state["tts"] = "unreachable", "unreachable"
		return state
	}
	defer func() { _ = rdb.Close() }()

	quota := ratelimit.NewQuota(rdb, cfg.ProviderQuotaPerMinute)
	for _, name := range []string{"gemini", "tts"} {
		res, err := quota.Status(ctx, name)
		switch {
		case err != nil:
			state[name] = "unknown"
		case res.Allowed:
			state[name] = fmt.Sprintf("available (%d/min)", cfg.ProviderQuotaPerMinute)
		default:
			state[name] = "exhausted"
		}
	}
	return state
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
