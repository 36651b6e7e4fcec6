package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"musickit/app"
	"musickit/channel"
	"musickit/config"
	"musickit/database"
	"musickit/musickit"
)

// fakeGateway is a scripted gateway for tool tests.
type fakeGateway struct {
	tokenErr error
	played   [][]string
}

func (g *fakeGateway) CheckAuthorizationStatus(ctx context.Context) (bool, error) {
	return true, nil
}

func (g *fakeGateway) RequestPermission(ctx context.Context) (string, error) {
	return "", &musickit.Error{Op: "RequestPermission", Kind: musickit.KindDenied, Message: "User denied permission"}
}

func (g *fakeGateway) CheckPlaybackCapability(ctx context.Context) (string, error) {
	return musickit.MessageSubscriptionFound, nil
}

func (g *fakeGateway) FetchUserToken(ctx context.Context, developerToken string) (string, error) {
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "user-" + developerToken, nil
}

func (g *fakeGateway) PlayTrackIds(ctx context.Context, ids []string) {
	g.played = append(g.played, ids)
}

func newTestHandlers(t *testing.T, gw *fakeGateway, supported bool) *handlers {
	t.Helper()
	dm, err := database.NewDatabaseManager(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	return &handlers{
		dispatcher: channel.NewDispatcher(gw, channel.Options{Supported: supported}),
		storefront: func() string { return "gb" },
		journal:    dm,
		logger:     zap.NewNop(),
	}
}

// Helper function to create CallToolRequest with arguments
func createRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// Helper function to extract text from CallToolResult
func extractText(result *mcp.CallToolResult) (string, error) {
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content in result")
	}
	if textContent, ok := result.Content[0].(mcp.TextContent); ok {
		return textContent.Text, nil
	}
	return "", fmt.Errorf("unexpected content type %T", result.Content[0])
}

func TestToolResults(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, &fakeGateway{}, true)

	tests := []struct {
		name      string
		method    string
		wantText  string
		wantError bool
	}{
		{"authorization status", channel.MethodCheckAuthorizationStatus, "true", false},
		{"capability", channel.MethodCheckPlaybackCapability, `"Apple Music subscription found"`, false},
		{"request denied", channel.MethodRequestPermission, `{"code":"DENIED","message":"User denied permission"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.noArgs(tt.method)(ctx, createRequest(nil))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if result.IsError != tt.wantError {
				t.Errorf("Expected IsError=%v, got %v", tt.wantError, result.IsError)
			}
			text, err := extractText(result)
			if err != nil {
				t.Fatalf("Failed to extract text: %v", err)
			}
			if text != tt.wantText {
				t.Errorf("Expected %s, got %s", tt.wantText, text)
			}
		})
	}
}

func TestFetchUserTokenTool(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, &fakeGateway{}, true)

	result, err := h.fetchUserToken(ctx, createRequest(map[string]interface{}{"developer_token": "abc"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	text, _ := extractText(result)
	if result.IsError || text != `"user-abc"` {
		t.Errorf("Expected user token, got %s (error=%v)", text, result.IsError)
	}

	result, _ = h.fetchUserToken(ctx, createRequest(map[string]interface{}{}))
	if !result.IsError {
		t.Error("Expected missing developer_token to fail")
	}

	h = newTestHandlers(t, &fakeGateway{tokenErr: &musickit.Error{
		Kind: musickit.KindUnavailable, Message: "Error Encountered", Details: "network down", Err: errors.New("network down"),
	}}, true)
	result, _ = h.fetchUserToken(ctx, createRequest(map[string]interface{}{"developer_token": "abc"}))
	text, _ = extractText(result)
	if !result.IsError || !strings.Contains(text, `"UNAVAILABLE"`) || !strings.Contains(text, "network down") {
		t.Errorf("Expected UNAVAILABLE tool error with details, got %s", text)
	}
}

func TestPlayTrackIdsTool(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	h := newTestHandlers(t, gw, true)

	result, err := h.playTrackIds(ctx, createRequest(map[string]interface{}{"ids": []interface{}{"1", "2"}}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	text, _ := extractText(result)
	if result.IsError || text != "null" {
		t.Errorf("Expected null result, got %s", text)
	}
	if !reflect.DeepEqual(gw.played, [][]string{{"1", "2"}}) {
		t.Errorf("Expected ids forwarded, got %v", gw.played)
	}

	result, _ = h.playTrackIds(ctx, createRequest(map[string]interface{}{"ids": []interface{}{1, 2}}))
	text, _ = extractText(result)
	if !result.IsError || !strings.Contains(text, "INVALID_ARGUMENTS") {
		t.Errorf("Expected INVALID_ARGUMENTS, got %s", text)
	}

	result, _ = h.playTrackIds(ctx, createRequest(map[string]interface{}{}))
	if !result.IsError {
		t.Error("Expected missing ids to fail")
	}
}

func TestUnsupportedSystem(t *testing.T) {
	h := newTestHandlers(t, &fakeGateway{}, false)
	result, _ := h.noArgs(channel.MethodCheckAuthorizationStatus)(context.Background(), createRequest(nil))
	text, _ := extractText(result)
	if !result.IsError || !strings.Contains(text, "not implemented") {
		t.Errorf("Expected not implemented error, got %s", text)
	}
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, &fakeGateway{}, true)

	t.Run("Storefront resource", func(t *testing.T) {
		request := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "musickit://storefront"}}
		contents, err := h.storefrontResource(ctx, request)
		if err != nil {
			t.Fatalf("storefrontResource returned error: %v", err)
		}
		textContent, ok := contents[0].(*mcp.TextResourceContents)
		if !ok {
			t.Fatalf("Expected TextResourceContents, got %T", contents[0])
		}
		if textContent.Text != `{"country_code":"gb"}` {
			t.Errorf("Unexpected storefront payload %s", textContent.Text)
		}
	})

	t.Run("Queue history resource", func(t *testing.T) {
		if err := h.journal.RecordQueue(ctx, []string{"1", "2"}, nil); err != nil {
			t.Fatalf("RecordQueue failed: %v", err)
		}

		request := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "musickit://queue/history"}}
		contents, err := h.historyResource(ctx, request)
		if err != nil {
			t.Fatalf("historyResource returned error: %v", err)
		}
		textContent := contents[0].(*mcp.TextResourceContents)

		var submissions []database.QueueSubmission
		if err := json.Unmarshal([]byte(textContent.Text), &submissions); err != nil {
			t.Fatalf("Failed to parse history: %v", err)
		}
		if len(submissions) != 1 || submissions[0].TrackCount != 2 {
			t.Errorf("Expected one submission with 2 tracks, got %+v", submissions)
		}
	})

	t.Run("History without journal", func(t *testing.T) {
		bare := &handlers{journal: nil}
		request := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "musickit://queue/history"}}
		contents, err := bare.historyResource(ctx, request)
		if err != nil {
			t.Fatalf("historyResource returned error: %v", err)
		}
		if text := contents[0].(*mcp.TextResourceContents).Text; text != "[]" {
			t.Errorf("Expected empty array, got %s", text)
		}
	})
}

func TestNewServer(t *testing.T) {
	h := newTestHandlers(t, &fakeGateway{}, true)
	if newServer(h) == nil {
		t.Fatal("Expected server")
	}
}

type stubService struct{}

func (stubService) AuthorizationStatus(ctx context.Context) (musickit.AuthorizationStatus, error) {
	return musickit.StatusDenied, nil
}

func (stubService) RequestAuthorization(ctx context.Context) (musickit.AuthorizationStatus, error) {
	return musickit.StatusDenied, nil
}

func (stubService) StorefrontCountryCode(ctx context.Context) (string, error) {
	return "", errors.New("not authorized")
}

func (stubService) Capabilities(ctx context.Context) (musickit.Capability, error) {
	return musickit.CapabilityNone, nil
}

func (stubService) UserToken(ctx context.Context, developerToken string) (string, error) {
	return "", errors.New("not authorized")
}

type stubPlayer struct{}

func (stubPlayer) SetQueue(ctx context.Context, ids []string) error { return nil }
func (stubPlayer) Play(ctx context.Context) error { return nil }

func TestRunClosesAppOnServeError(t *testing.T) {
	cfg := config.Default()
	cfg.MinOSVersion = ""
	cfg.UseDatabase = true
	cfg.DBPath = filepath.Join(t.TempDir(), "journal.db")

	a, err := app.NewWithBackends(context.Background(), cfg, nil, app.Backends{
		Service: stubService{},
		Player:  stubPlayer{},
	})
	if err != nil {
		t.Fatalf("NewWithBackends failed: %v", err)
	}

	served := false
	err = run(a, zap.NewNop(), func(s *server.MCPServer) error {
		served = s != nil
		return errors.New("stdin closed")
	})
	if err == nil || err.Error() != "stdin closed" {
		t.Errorf("Expected serve error to be returned, got %v", err)
	}
	if !served {
		t.Error("Expected serve to receive the server")
	}
	if err := a.Journal.DB.Ping(); err == nil {
		t.Error("Expected journal to be closed after run")
	}
}
