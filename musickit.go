package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"musickit/app"
	"musickit/channel"
	"musickit/config"
	"musickit/database"
	"musickit/logging"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: musickit <command> [arguments]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status                    - Check Apple Music authorization (never prompts)")
	fmt.Fprintln(w, "  request                   - Ask the user for Apple Music access")
	fmt.Fprintln(w, "  can-play                  - Check whether the subscription allows catalog playback")
	fmt.Fprintln(w, "  token <developer-token>   - Fetch a music user token")
	fmt.Fprintln(w, "  play <id> [id...]         - Replace the queue with the given tracks and play")
	fmt.Fprintln(w, "  history [limit]           - Show recent queue submissions from the journal")
	fmt.Fprintln(w, "\nEnvironment variables:")
	fmt.Fprintln(w, "  MUSICKIT_CONFIG           - YAML configuration file")
	fmt.Fprintln(w, "  MUSICKIT_HELPER_PATH      - StoreKit helper executable")
	fmt.Fprintln(w, "  MUSICKIT_USE_DATABASE=true - Journal queue submissions in SQLite")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// history only needs the journal
	if os.Args[1] == "history" {
		if err := showHistory(ctx, os.Stdout, cfg.DBPath, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "History failed:", err)
			os.Exit(1)
		}
		return
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	code := runCommand(ctx, os.Stdout, a, os.Args[1:])
	a.Close()
	os.Exit(code)
}

// runCommand executes one channel command and returns the exit code.
func runCommand(ctx context.Context, w io.Writer, a *app.App, args []string) int {
	var call channel.MethodCall

	switch args[0] {
	case "status":
		call.Method = channel.MethodCheckAuthorizationStatus
	case "request":
		call.Method = channel.MethodRequestPermission
	case "can-play":
		call.Method = channel.MethodCheckPlaybackCapability
	case "token":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: musickit token <developer-token>")
			return 2
		}
		call.Method = channel.MethodFetchUserToken
		call.Arguments, _ = json.Marshal(args[1])
	case "play":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: musickit play <id> [id...]")
			return 2
		}
		call.Method = channel.MethodPlayTrackID
		call.Arguments, _ = json.Marshal(args[1:])
	default:
		fmt.Fprintln(w, "Unknown command:", args[0])
		fmt.Fprintln(w, "Available commands: status, request, can-play, token, play, history")
		return 2
	}

	resp := a.Dispatcher.Handle(ctx, call)
	switch {
	case resp.NotImplemented:
		fmt.Fprintf(w, "Not supported on this system (minimum OS version %s)\n", a.Config.MinOSVersion)
		return 1
	case resp.Err != nil:
		fmt.Fprintf(w, "Error [%s]: %s\n", resp.Err.Code, resp.Err.Message)
		if resp.Err.Details != nil {
			fmt.Fprintf(w, "Details: %v\n", resp.Err.Details)
		}
		return 1
	}

	switch call.Method {
	case channel.MethodCheckAuthorizationStatus:
		fmt.Fprintf(w, "Authorized: %v\n", resp.Result)
	case channel.MethodPlayTrackID:
		reportLastQueue(ctx, w, a.Journal)
	default:
		fmt.Fprintln(w, resp.Result)
	}
	return 0
}

// reportLastQueue prints the outcome of the submission just made. Without a
// journal there is nothing to report.
func reportLastQueue(ctx context.Context, w io.Writer, journal *database.DatabaseManager) {
	if journal == nil {
		fmt.Fprintln(w, "Queue submitted.")
		return
	}
	queues, err := journal.RecentQueues(ctx, 1)
	if err != nil || len(queues) == 0 {
		fmt.Fprintln(w, "Queue submitted.")
		return
	}
	last := queues[0]
	if last.Status == database.StatusFailed {
		fmt.Fprintf(w, "Playback failed: %s\n", last.Error)
		return
	}
	if last.Error != "" {
		fmt.Fprintf(w, "Playback started (%d tracks), %s\n", last.TrackCount, last.Error)
		return
	}
	fmt.Fprintf(w, "Playback started (%d tracks).\n", last.TrackCount)
}

func showHistory(ctx context.Context, w io.Writer, dbPath string, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	dm, err := database.NewDatabaseManager(dbPath, nil)
	if err != nil {
		return err
	}
	defer dm.Close()

	queues, err := dm.RecentQueues(ctx, limit)
	if err != nil {
		return err
	}
	if len(queues) == 0 {
		fmt.Fprintln(w, "No queue submissions recorded.")
		return nil
	}

	for _, q := range queues {
		line := fmt.Sprintf("%s  %-7s  %d tracks", q.CreatedAt.Local().Format("2006-01-02 15:04:05"), q.Status, q.TrackCount)
		if q.Error != "" {
			line += "  " + q.Error
		}
		fmt.Fprintln(w, line)
	}

	stats, err := dm.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSubmissions: %d (%d failed), tracks queued: %d\n", stats.SubmissionCount, stats.FailedCount, stats.QueuedTracks)
	return nil
}
