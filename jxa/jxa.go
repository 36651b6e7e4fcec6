// Package jxa drives the Music app through JavaScript for Automation
// scripts run by osascript.
package jxa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"musickit/musickit"
)

// Exported error variables for better error handling
var (
	ErrScriptFailed  = errors.New("JXA script execution failed")
	ErrNoTracksFound = errors.New("no tracks found")
	ErrEmptyQueue    = errors.New("queue is empty")
)

const (
	// DefaultTimeout bounds a single script run.
	DefaultTimeout = 30 * time.Second

	// DefaultPlaylistName is the playlist the queue is rebuilt into.
	DefaultPlaylistName = "MusicKit Queue"
)

// Runner executes a script file with arguments and returns its stdout.
type Runner func(ctx context.Context, scriptPath string, args ...string) ([]byte, error)

// scriptResult is the JSON document printed by every script.
type scriptResult struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Added   int      `json:"added"`
	Missing []string `json:"missing,omitempty"`
}

// Player implements musickit.Player on top of the Music app.
type Player struct {
	Runner       Runner
	Timeout      time.Duration
	PlaylistName string
	Logger       *zap.Logger
}

var _ musickit.Player = (*Player)(nil)

// NewPlayer creates a Player that runs scripts with osascript.
func NewPlayer(playlistName string, logger *zap.Logger) *Player {
	if playlistName == "" {
		playlistName = DefaultPlaylistName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		Runner:       OSAScript,
		Timeout:      DefaultTimeout,
		PlaylistName: playlistName,
		Logger:       logger,
	}
}

// SetQueue rebuilds the queue playlist from the given track ids, in order.
// Ids that are not in the library are skipped and reported with a
// *musickit.PartialQueueError; it fails outright only when none match.
func (p *Player) SetQueue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyQueue
	}

	args := append([]string{p.PlaylistName}, ids...)
	res, err := p.run(ctx, setQueueScript, "musickit_queue_*.js", args...)
	if err != nil {
		return err
	}
	if len(res.Missing) > 0 && p.Logger != nil {
		p.Logger.Warn("Tracks not found in library", zap.Strings("missing", res.Missing), zap.Int("added", res.Added))
	}
	if res.Status != "success" {
		if res.Added == 0 {
			return fmt.Errorf("%w: %s", ErrNoTracksFound, res.Message)
		}
		return fmt.Errorf("%w: %s", ErrScriptFailed, res.Message)
	}
	if len(res.Missing) > 0 {
		return &musickit.PartialQueueError{Missing: res.Missing, Queued: res.Added}
	}
	return nil
}

// Play starts playback of the queue playlist.
func (p *Player) Play(ctx context.Context) error {
	res, err := p.run(ctx, playScript, "musickit_play_*.js", p.PlaylistName)
	if err != nil {
		return err
	}
	if res.Status != "success" {
		return fmt.Errorf("%w: %s", ErrScriptFailed, res.Message)
	}
	return nil
}

func (p *Player) run(ctx context.Context, script, pattern string, args ...string) (*scriptResult, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Create a temporary file with the embedded script
	tempFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err := tempFile.WriteString(script); err != nil {
		return nil, fmt.Errorf("failed to write script to temp file: %w", err)
	}
	tempFile.Close()

	runner := p.Runner
	if runner == nil {
		runner = OSAScript
	}
	out, err := runner(ctx, tempFile.Name(), args...)
	if err != nil {
		return nil, err
	}

	var res scriptResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return nil, fmt.Errorf("invalid JSON output: %w", err)
	}
	return &res, nil
}

// OSAScript runs a JXA script file with osascript.
func OSAScript(ctx context.Context, scriptPath string, args ...string) ([]byte, error) {
	cmdArgs := append([]string{"-l", "JavaScript", scriptPath}, args...)
	cmd := exec.CommandContext(ctx, "osascript", cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScriptFailed, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
