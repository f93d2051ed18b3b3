// Command fxctl is the operator CLI for a running fxd.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiURL     string
	totpSecret string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "fxctl",
	Short: "Operate the forex decision engine",
	Long: `fxctl talks to the fxd HTTP API.

Examples:
  fxctl scan EURUSD --interval 1h
  fxctl run-bot
  fxctl trades --limit 50
  fxctl close EURUSD_20260304120000_1a2b3c4d
  fxctl auto start`,
	SilenceUsage: true,
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("FXD_URL", "http://localhost:8000"), "fxd base URL")
	rootCmd.PersistentFlags().StringVar(&totpSecret, "totp-secret", os.Getenv("ADMIN_TOTP_SECRET"), "admin TOTP secret for reset and close")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")

	rootCmd.AddCommand(scanCmd(), opportunitiesCmd(), priceCmd(), runBotCmd(), tradesCmd(),
		closeCmd(), resetCmd(), autoCmd(), journalCmd(), statusCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient {
	return newAPIClient(strings.TrimRight(apiURL, "/"), totpSecret, timeout)
}

// run executes one API call and prints the response.
func run(cmd *cobra.Command, method, path string, body any, admin bool) error {
	out, err := client().call(cmd.Context(), method, path, body, admin)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func scanCmd() *cobra.Command {
	var period, interval string
	cmd := &cobra.Command{
		Use:   "scan SYMBOL",
		Short: "Analyze one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"symbol": args[0], "period": period, "interval": interval}
			return run(cmd, http.MethodPost, "/api/scan", body, false)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "history window (1d, 5d, 1mo, ...)")
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval (15m, 1h, ...)")
	return cmd
}

func opportunitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "opportunities",
		Short: "Scan the whole universe, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/api/opportunities", nil, false)
		},
	}
}

func priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price SYMBOL",
		Short: "Show the live price of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/api/live_price/"+args[0], nil, false)
		},
	}
}

func runBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-bot",
		Short: "Run one trading cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/run_bot", nil, false)
		},
	}
}

func tradesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show active trades, recent history and account stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/api/trades?limit="+strconv.Itoa(limit), nil, false)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "closed trades to show")
	return cmd
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close TRADE_ID",
		Short: "Close an active trade at the live price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/close_trade/"+args[0], nil, true)
		},
	}
}

func resetCmd() *cobra.Command {
	var balance float64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the account and start over",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/reset", map[string]float64{"balance": balance}, true)
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 10000, "starting balance")
	return cmd
}

func autoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Control the auto-trade controller",
	}
	for _, action := range []struct{ use, short, method string }{
		{"start", "Start auto-trading", http.MethodPost},
		{"stop", "Stop auto-trading", http.MethodPost},
		{"status", "Show auto-trading status", http.MethodGet},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, action.method, "/api/auto-trade/"+action.use, nil, false)
			},
		})
	}
	return cmd
}

func journalCmd() *cobra.Command {
	var limit int
	var bySymbol bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the closed-trade journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bySymbol {
				return run(cmd, http.MethodGet, "/api/journal/symbols", nil, false)
			}
			return run(cmd, http.MethodGet, "/api/journal?limit="+strconv.Itoa(limit), nil, false)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "entries to show")
	cmd.Flags().BoolVar(&bySymbol, "by-symbol", false, "aggregate per symbol")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine and market status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			out, err := client().call(ctx, http.MethodGet, "/api/status", nil, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
