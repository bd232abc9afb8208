package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/store"
	"github.com/andresmejia3/facerank/internal/utils"
)

// Options holds shared configuration for the detect and match commands
type Options struct {
	NumWorkers     int
	QueueSize      int
	ConfThreshold  float64
	NMSThreshold   float64
	MatchThreshold float64
	OrtLibrary     string
	Threads        int
}

var (
	// DB is the optional database connection shared by subcommands.
	// It is nil unless --db or POSTGRES_HOST is set.
	DB *store.Store
	// dbURL is the connection string
	dbURL    string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facerank",
	Short:   "Face detection and similarity ranking over image folders",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if env := os.Getenv("FACERANK_LOG_LEVEL"); env != "" {
				level = env
			}
		}
		if err := utils.SetLogLevel(level); err != nil {
			return err
		}

		url := resolveDBURL(dbURL, os.Getenv)
		if url == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		var err error
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		utils.Log.WithField("host", redactURL(url)).Debug("database connected")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// resolveDBURL returns the --db value, else a URL built from the POSTGRES_*
// environment, else "" (no persistence).
func resolveDBURL(flag string, getenv func(string) string) string {
	if flag != "" {
		return flag
	}
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
}

// requireDB fails commands that only make sense with persistence configured.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("no database configured (use --db or POSTGRES_HOST)")
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for run history (default: POSTGRES_* environment, else disabled)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Diagnostic log level: debug, info, warn, error (env FACERANK_LOG_LEVEL)")
}
