package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"musickit/config"
	"musickit/database"
	"musickit/logging"
)

// options controls a single run of the tool.
type options struct {
	DBPath   string
	Verbose  bool
	DryRun   bool
	Validate bool
	Down     int
	Prune    time.Duration
	Vacuum   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.DBPath, "db", "", "Path to SQLite journal (default from configuration)")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be done without making changes")
	flag.BoolVar(&opts.Validate, "validate", false, "Validate the existing journal")
	flag.IntVar(&opts.Down, "down", -1, "Roll the schema back to this version")
	flag.DurationVar(&opts.Prune, "prune", 0, "Delete submissions older than this age (e.g. 720h)")
	flag.BoolVar(&opts.Vacuum, "vacuum", false, "Vacuum the journal after other operations")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "musickit Queue Journal Tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Create or upgrade the journal schema\n")
		fmt.Fprintf(os.Stderr, "  %s\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Validate the journal\n")
		fmt.Fprintf(os.Stderr, "  %s -validate\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Drop submissions older than 30 days and reclaim space\n")
		fmt.Fprintf(os.Stderr, "  %s -prune 720h -vacuum\n", os.Args[0])
	}
	flag.Parse()

	// Configure logging
	if !opts.Verbose {
		log.SetFlags(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if opts.DBPath == "" {
		opts.DBPath = cfg.DBPath
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.InitLogger(level, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(context.Background(), os.Stdout, opts, logger); err != nil {
		logger.Sync()
		log.Fatalf("Failed: %v", err)
	}
}

func run(ctx context.Context, w io.Writer, opts options, logger *zap.Logger) error {
	path, err := database.ExpandPath(opts.DBPath)
	if err != nil {
		return err
	}

	if opts.DryRun {
		fmt.Fprintln(w, "Would open journal:", path)
		fmt.Fprintln(w, "Would migrate schema to version", database.SchemaVersion)
		if opts.Down >= 0 {
			fmt.Fprintln(w, "Would roll back schema to version", opts.Down)
		}
		if opts.Prune > 0 {
			fmt.Fprintln(w, "Would prune submissions older than", opts.Prune)
		}
		return nil
	}

	// Opening the journal applies pending migrations
	dm, err := database.NewDatabaseManager(path, logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer dm.Close()

	if opts.Down >= 0 {
		if err := database.MigrateDown(dm.DB, opts.Down, logger); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Fprintf(w, "Rolled back schema to version %d\n", opts.Down)
		return nil
	}

	version, err := database.GetSchemaVersion(dm.DB)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Journal %s at schema version %d\n", path, version)

	if opts.Prune > 0 {
		n, err := dm.Prune(ctx, opts.Prune)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Pruned %d submissions older than %s\n", n, opts.Prune)
	}

	if opts.Vacuum {
		start := time.Now()
		if err := dm.Vacuum(); err != nil {
			return fmt.Errorf("vacuum failed: %w", err)
		}
		fmt.Fprintf(w, "Vacuum completed in %s\n", time.Since(start).Round(time.Millisecond))
	}

	if opts.Validate {
		return validateJournal(ctx, w, dm)
	}
	return nil
}

// validateJournal prints statistics and checks the journal's consistency
func validateJournal(ctx context.Context, w io.Writer, dm *database.DatabaseManager) error {
	stats, err := dm.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get journal stats: %w", err)
	}

	fmt.Fprintln(w, "Journal Statistics:")
	fmt.Fprintf(w, "  Submissions: %d\n", stats.SubmissionCount)
	fmt.Fprintf(w, "  Failed:      %d\n", stats.FailedCount)
	fmt.Fprintf(w, "  Tracks:      %d\n", stats.QueuedTracks)
	fmt.Fprintf(w, "  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))

	fmt.Fprintln(w, "\nRunning validation checks...")

	var mismatched int64
	err = dm.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_submissions s
		WHERE s.track_count != (SELECT COUNT(*) FROM queue_tracks t WHERE t.submission_id = s.id)
	`).Scan(&mismatched)
	if err != nil {
		return fmt.Errorf("failed to check track counts: %w", err)
	}
	if mismatched > 0 {
		fmt.Fprintf(w, "  ⚠️  Found %d submissions whose track count does not match their tracks\n", mismatched)
	} else {
		fmt.Fprintln(w, "  ✓ Track counts match")
	}

	var orphans int64
	err = dm.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_tracks t
		WHERE NOT EXISTS (SELECT 1 FROM queue_submissions s WHERE s.id = t.submission_id)
	`).Scan(&orphans)
	if err != nil {
		return fmt.Errorf("failed to check orphaned tracks: %w", err)
	}
	if orphans > 0 {
		fmt.Fprintf(w, "  ⚠️  Found %d orphaned queue tracks\n", orphans)
	} else {
		fmt.Fprintln(w, "  ✓ No orphaned queue tracks")
	}

	var integrity string
	if err := dm.DB.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check: %s", integrity)
	}
	fmt.Fprintln(w, "  ✓ Integrity check passed")

	if top, err := dm.TopTracks(ctx, 5); err == nil && len(top) > 0 {
		fmt.Fprintln(w, "\nMost queued tracks:")
		for _, t := range top {
			fmt.Fprintf(w, "  - %s (%d)\n", t.TrackID, t.Count)
		}
	}

	if mismatched > 0 || orphans > 0 {
		return fmt.Errorf("journal has %d mismatched submissions and %d orphaned tracks", mismatched, orphans)
	}
	fmt.Fprintln(w, "\nValidation completed successfully!")
	return nil
}
