package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"agreegraph/internal/app"
	"agreegraph/internal/config"
	"agreegraph/internal/core"
	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
)

var (
	sessionID  string
	jsonOutput bool
	clearCache bool

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "agreegraph",
		Short: "Turns a question into entities, fetched context, a knowledge graph and a judged summary",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.InitLogger(loaded.Log); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		SilenceUsage: true,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Runs the pipeline once for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Interactive session; /reset, /state and /stats are available",
		RunE:  runRepl,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints cache statistics",
		RunE:  runStats,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id (default: a new random id)")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the final state as JSON")
	statsCmd.Flags().BoolVar(&clearCache, "clear", false, "clear every cache store first")

	rootCmd.AddCommand(askCmd, replCmd, statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// start builds the app and serves /metrics when METRICS_ADDR is set
func start(ctx context.Context) (*app.App, func(), error) {
	a, err := app.New(ctx, cfg, app.Dependencies{})
	if err != nil {
		return nil, nil, err
	}

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if server != nil {
			_ = server.Shutdown(shutdownCtx)
		}
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Close failed")
		}
	}
	return a, cleanup, nil
}

func currentSession() string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return sessionID
}

func printEvent(ev core.Event) {
	fmt.Printf("\n🤖 [%s]\n%s\n", ev.Author, ev.Text)
}

func printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, cleanup, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	onEvent := printEvent
	if jsonOutput {
		onEvent = nil
	}

	state, err := a.Ask(cmd.Context(), currentSession(), strings.Join(args, " "), onEvent)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(state)
	}
	fmt.Printf("\n📋 Session %s\n%s\n", sessionID, app.Summary(state))
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, cleanup, err := start(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	id := currentSession()
	fmt.Printf("🚀 AgreeGraph session %s. Type a question, or 'exit' to quit.\n", id)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n👤 You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("👋 Goodbye!")
			return nil
		case "/reset":
			if err := a.Reset(ctx, id); err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			fmt.Println("🔄 Session reset")
			continue
		case "/state":
			state, err := a.State(ctx, id)
			if errors.Is(err, storage.ErrSessionNotFound) {
				fmt.Println("No state yet")
				continue
			}
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			if err := printJSON(state); err != nil {
				fmt.Printf("❌ %v\n", err)
			}
			continue
		case "/stats":
			printStats(a)
			continue
		}

		state, err := a.Ask(ctx, id, input, printEvent)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Printf("\n📋 %s\n", app.Summary(state))
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	a, cleanup, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if clearCache {
		if !a.ClearCaches(cmd.Context()) {
			fmt.Println("⚠️ Some cache stores could not be cleared")
		} else {
			fmt.Println("🧹 Caches cleared")
		}
	}
	printStats(a)
	return nil
}

func printStats(a *app.App) {
	stats := a.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("📊 Cache statistics (%s backend, enabled=%t)\n", cfg.Cache.Backend, cfg.Cache.Enabled)
	for _, name := range names {
		s := stats[name]
		fmt.Printf("  %-16s hits=%d misses=%d sets=%d errors=%d hit_rate=%.2f%%\n",
			name, s.Hits, s.Misses, s.Sets, s.Errors, s.HitRate*100)
	}
}
