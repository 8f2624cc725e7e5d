/*
main.go - Application entry point

PURPOSE:
  Command-line entry point of the BizVista review engine. Serves the HTTP
  API, runs one-off refreshes, and imports review datasets.

COMMANDS:
  serve              Start the HTTP server (and the scheduler if enabled)
  refresh <id>...    Re-analyze businesses for a period, print outcomes
  import <file>      Load businesses and reviews from a JSON dataset

GLOBAL FLAGS:
  --config   YAML config file (default: bizvista.yaml, optional)
  --db       SQLite database path, overrides config
             Use ":memory:" for an in-memory database
  --json     Print command results as JSON
  --verbose  Debug logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server serve --port=4174
  ./server import reviews.json
  ./server import --demo
  ./server refresh B1 B2 --period=90d

ENVIRONMENT:
  See config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizvista/review-engine/api"
	"github.com/bizvista/review-engine/config"
	"github.com/bizvista/review-engine/review"
)

var (
	configPath string
	dbPath     string
	jsonOutput bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "BizVista review re-analysis and narrative engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "bizvista.yaml", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(serveCmd(), refreshCmd(), importCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads configuration, applies the global flags and wires the app.
func loadApp(port int) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Server.DB = dbPath
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return newApp(cfg, newLogger(verbose))
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(port)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (overrides config)")
	return cmd
}

func serve(a *app) error {
	router := api.NewRouter(a.handler(), a.cfg.Server.AllowedOrigins...)

	scheduler, err := a.scheduler()
	if err != nil {
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.Narrative.QueryTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", "url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port),
			"db", a.cfg.Server.DB, "llm", a.cfg.LLM.Provider, "model", a.cfg.LLM.Model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server stopped")
	return nil
}

// =============================================================================
// REFRESH
// =============================================================================

func refreshCmd() *cobra.Command {
	var (
		periodFlag string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "refresh [business-id...]",
		Short: "Re-analyze businesses for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := review.ParsePeriod(periodFlag)
			if err != nil {
				return err
			}
			if len(args) == 0 && !all {
				return errors.New("name at least one business id or pass --all")
			}

			a, err := loadApp(0)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			ids := make([]review.BusinessID, 0, len(args))
			for _, id := range args {
				ids = append(ids, review.BusinessID(id))
			}
			if all {
				businesses, err := a.store.ListBusinesses(ctx)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, b := range businesses {
					ids = append(ids, b.ID)
				}
			}

			failed := 0
			for _, id := range ids {
				out := a.coordinator.Refresh(ctx, id, period)
				if jsonOutput {
					printJSON(out.Payload())
				} else if out.Success() {
					fmt.Printf("%s %s: %d reviews, sentiment %d, narrative %s\n",
						id, period, out.ProcessedReviews, out.SentimentScore, out.Source)
				} else {
					fmt.Printf("%s %s: %s\n", id, period, out.Reason())
				}
				if !out.Success() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d refreshes did not commit", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&periodFlag, "period", string(review.Period30d), "Period: 30d, 90d or ytd")
	cmd.Flags().BoolVar(&all, "all", false, "Refresh every business")
	return cmd
}

// =============================================================================
// IMPORT
// =============================================================================

func importCmd() *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load businesses and reviews from a JSON dataset",
		Args: func(cmd *cobra.Command, args []string) error {
			if demo {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var ds api.Dataset
			if demo {
				ds = api.DemoDataset(time.Now().UTC(), 365, 150)
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				if ds, err = api.LoadDataset(f); err != nil {
					return err
				}
			}

			a, err := loadApp(0)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := ds.Import(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(stats)
			} else {
				fmt.Printf("Imported %d businesses and %d reviews (%d scored)\n",
					stats.Businesses, stats.Reviews, stats.Scored)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "Import the generated demo dataset instead of a file")
	return cmd
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
