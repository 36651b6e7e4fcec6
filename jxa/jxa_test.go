package jxa

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"musickit/musickit"
)

type call struct {
	script string
	args   []string
}

// fakeRunner returns canned output and records what it was asked to run.
type fakeRunner struct {
	calls  []call
	output map[string]string // keyed by a marker found in the script
	err    error
}

func (f *fakeRunner) run(ctx context.Context, scriptPath string, args ...string) ([]byte, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, err
	}
	script := string(data)
	f.calls = append(f.calls, call{script: script, args: args})
	if f.err != nil {
		return nil, f.err
	}
	for marker, out := range f.output {
		if strings.Contains(script, marker) {
			return []byte(out), nil
		}
	}
	return []byte(`{"status":"success"}`), nil
}

func newTestPlayer(r *fakeRunner) *Player {
	p := NewPlayer("", nil)
	p.Runner = r.run
	return p
}

func TestSetQueueArguments(t *testing.T) {
	r := &fakeRunner{output: map[string]string{
		"Rebuilds the queue": `{"status":"success","added":2}`,
	}}
	p := newTestPlayer(r)

	if err := p.SetQueue(context.Background(), []string{"111", "222"}); err != nil {
		t.Fatalf("SetQueue failed: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("Expected 1 script run, got %d", len(r.calls))
	}
	want := []string{DefaultPlaylistName, "111", "222"}
	if !reflect.DeepEqual(r.calls[0].args, want) {
		t.Errorf("Expected args %v, got %v", want, r.calls[0].args)
	}
	if r.calls[0].script != setQueueScript {
		t.Error("Expected the embedded set_queue script")
	}
}

func TestSetQueuePartialMatch(t *testing.T) {
	r := &fakeRunner{output: map[string]string{
		"Rebuilds the queue": `{"status":"success","added":1,"missing":["222"]}`,
	}}
	p := newTestPlayer(r)

	err := p.SetQueue(context.Background(), []string{"111", "222"})
	var partial *musickit.PartialQueueError
	if !errors.As(err, &partial) {
		t.Fatalf("Expected PartialQueueError, got %v", err)
	}
	if !reflect.DeepEqual(partial.Missing, []string{"222"}) || partial.Queued != 1 {
		t.Errorf("Expected 1 queued and [222] missing, got %+v", partial)
	}
}

func TestSetQueueFailures(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		runner  *fakeRunner
		wantErr error
	}{
		{"empty queue", nil, &fakeRunner{}, ErrEmptyQueue},
		{"no matches", []string{"1"}, &fakeRunner{output: map[string]string{
			"Rebuilds the queue": `{"status":"error","message":"none of the track ids are in the library","added":0,"missing":["1"]}`,
		}}, ErrNoTracksFound},
		{"osascript failure", []string{"1"}, &fakeRunner{err: ErrScriptFailed}, ErrScriptFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlayer(tt.runner)
			err := p.SetQueue(context.Background(), tt.ids)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlay(t *testing.T) {
	r := &fakeRunner{}
	p := newTestPlayer(r)
	p.PlaylistName = "Road Trip"

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if len(r.calls) != 1 || !reflect.DeepEqual(r.calls[0].args, []string{"Road Trip"}) {
		t.Errorf("Expected play with playlist name, got %+v", r.calls)
	}
	if r.calls[0].script != playScript {
		t.Error("Expected the embedded play script")
	}

	r = &fakeRunner{output: map[string]string{
		"Starts playback": `{"status":"error","message":"queue playlist not found: Road Trip"}`,
	}}
	p = newTestPlayer(r)
	if err := p.Play(context.Background()); !errors.Is(err, ErrScriptFailed) {
		t.Errorf("Expected ErrScriptFailed, got %v", err)
	}
}

func TestInvalidScriptOutput(t *testing.T) {
	r := &fakeRunner{output: map[string]string{"Starts playback": "execution error"}}
	p := newTestPlayer(r)

	if err := p.Play(context.Background()); err == nil {
		t.Error("Expected error for non-JSON output")
	}
}
