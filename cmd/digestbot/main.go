package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/pipeline"
	"github.com/digestbot/digestbot/internal/state"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "digestbot",
	Short:   "Scheduled content digests",
	Long:    "Digestbot fetches configured sources, filters and deduplicates new items, and summarizes them into a periodic digest.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// A .env next to the working directory supplies API keys and
		// SMTP settings; absence is fine.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("digestbot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/digestbot/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, the summarizer, and outputs.")
		return nil
	},
}

// --- run command ---

var (
	dryRun  bool
	runDate string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the digest pipeline: fetch -> filter -> deduplicate -> summarize -> output",
	RunE: func(cmd *cobra.Command, args []string) error {
		reference := time.Time{}
		if runDate != "" {
			parsed, err := time.Parse("2006-01-02", runDate)
			if err != nil {
				return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", config.ErrInvalid, runDate)
			}
			// Anchor at end of day so the window covers the named date.
			reference = parsed.Add(24*time.Hour - time.Second)
		}

		summarizer, err := pipeline.NewSummarizer(cfg)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := pipeline.Run(context.Background(), pipeline.Options{
			Config:     cfg,
			Store:      db,
			Summarizer: summarizer,
			Reference:  reference,
			DryRun:     dryRun,
		})
		if err != nil {
			return err
		}

		fmt.Println("Run complete:")
		fmt.Printf("  Sources fetched: %d\n", result.SourcesFetched)
		fmt.Printf("  Sources failed: %d\n", result.SourcesFailed)
		fmt.Printf("  Items processed: %d\n", result.ItemsProcessed)
		for _, e := range result.Errors {
			fmt.Printf("  Error (%s): %s\n", e.SourceName, e.Message)
		}
		if dryRun {
			fmt.Println("\nDry run: no state committed, no outputs written.")
			fmt.Println("\n--- Digest ---")
			fmt.Println(result.Digest)
			return nil
		}
		for _, path := range result.OutputPaths {
			fmt.Printf("  Output: %s\n", path)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Summarize without committing state or writing outputs")
	runCmd.Flags().StringVar(&runDate, "date", "", "Anchor the time window at a past date (YYYY-MM-DD)")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show state database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Digest: %s (%s)\n", cfg.Meta.Name, cfg.Meta.Slug)
		fmt.Printf("State: %s\n\n", db.Path())

		counts, err := db.SeenCounts()
		if err != nil {
			return fmt.Errorf("reading seen counts: %w", err)
		}
		if len(counts) == 0 {
			fmt.Println("No items seen yet. Run 'digestbot run' to generate a digest.")
		} else {
			names := make([]string, 0, len(counts))
			total := 0
			for name, n := range counts {
				names = append(names, name)
				total += n
			}
			sort.Strings(names)
			fmt.Println("Seen items:")
			for _, name := range names {
				fmt.Printf("  %s: %d\n", name, counts[name])
			}
			fmt.Printf("  Total: %d\n", total)
		}

		last, err := db.LastRun()
		if err != nil {
			return fmt.Errorf("reading last run: %w", err)
		}
		if last != nil {
			fmt.Printf("\nLast run: %s\n", last.GeneratedAt)
			fmt.Printf("  Items processed: %d\n", last.ItemsProcessed)
			fmt.Printf("  Sources failed: %d\n", last.SourcesFailed)
			if last.DigestPath != "" {
				fmt.Printf("  Digest: %s\n", last.DigestPath)
			}
		}
		return nil
	},
}

func openDB() (*state.DB, error) {
	stateDir := cfg.GetStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return state.Open(filepath.Join(stateDir, "state.db"))
}
