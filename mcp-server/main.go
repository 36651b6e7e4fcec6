package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"musickit/app"
	"musickit/channel"
	"musickit/config"
	"musickit/database"
	"musickit/logging"
)

// historyLimit is the number of submissions returned by the history resource.
const historyLimit = 50

// handlers binds the MCP tools and resources to a channel dispatcher.
type handlers struct {
	dispatcher *channel.Dispatcher
	storefront func() string
	journal    *database.DatabaseManager // nil when the journal is disabled
	logger     *zap.Logger
}

func main() {
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

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	serve := func(s *server.MCPServer) error { return server.ServeStdio(s) }
	if err := run(a, logger, serve); err != nil {
		logger.Error("Server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// run serves the app's channel over MCP until serve returns. The app is
// closed on every path.
func run(a *app.App, logger *zap.Logger, serve func(*server.MCPServer) error) error {
	defer a.Close()

	h := &handlers{
		dispatcher: a.Dispatcher,
		storefront: a.Gateway.StorefrontCountryCode,
		journal:    a.Journal,
		logger:     logger.Named("mcp"),
	}
	return serve(newServer(h))
}

// newServer creates the MCP server with one tool per channel method.
func newServer(h *handlers) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"musickit-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithLogging(),
	)

	mcpServer.AddTool(mcp.NewTool(channel.MethodCheckAuthorizationStatus,
		mcp.WithDescription("Check whether the user has authorized Apple Music access. Returns true or false and never shows a prompt."),
	), h.noArgs(channel.MethodCheckAuthorizationStatus))

	mcpServer.AddTool(mcp.NewTool(channel.MethodRequestPermission,
		mcp.WithDescription("Ask the user for Apple Music access. Shows the system prompt if the user has not decided yet."),
	), h.noArgs(channel.MethodRequestPermission))

	mcpServer.AddTool(mcp.NewTool(channel.MethodCheckPlaybackCapability,
		mcp.WithDescription("Check whether the user's Apple Music subscription allows catalog playback."),
	), h.noArgs(channel.MethodCheckPlaybackCapability))

	mcpServer.AddTool(mcp.NewTool(channel.MethodFetchUserToken,
		mcp.WithDescription("Exchange an Apple Music developer token for a music user token."),
		mcp.WithString("developer_token",
			mcp.Required(),
			mcp.Description("Apple Music developer token (JWT)"),
		),
	), h.fetchUserToken)

	mcpServer.AddTool(mcp.NewTool(channel.MethodPlayTrackID,
		mcp.WithDescription("Replace the Music app queue with the given tracks, in order, and start playback. Failures are not reported back; check the queue history resource."),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Track ids (library persistent ids)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), h.playTrackIds)

	mcpServer.AddResource(mcp.NewResource(
		"musickit://storefront",
		"Storefront Country Code",
		mcp.WithResourceDescription("Cached Apple Music storefront country code"),
		mcp.WithMIMEType("application/json"),
	), h.storefrontResource)

	mcpServer.AddResource(mcp.NewResource(
		"musickit://queue/history",
		"Queue History",
		mcp.WithResourceDescription("Recent playback queue submissions, newest first"),
		mcp.WithMIMEType("application/json"),
	), h.historyResource)

	return mcpServer
}

func (h *handlers) noArgs(method string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h.invoke(ctx, channel.MethodCall{Method: method}), nil
	}
}

func (h *handlers) fetchUserToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("developer_token")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid developer_token parameter: %v", err)), nil
	}
	args, err := json.Marshal(token)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode arguments: %v", err)), nil
	}
	return h.invoke(ctx, channel.MethodCall{Method: channel.MethodFetchUserToken, Arguments: args}), nil
}

func (h *handlers) playTrackIds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, ok := request.GetArguments()["ids"]
	if !ok {
		return mcp.NewToolResultError("Invalid ids parameter: required argument \"ids\" not found"), nil
	}
	// The channel validates the element types.
	args, err := json.Marshal(ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode arguments: %v", err)), nil
	}
	return h.invoke(ctx, channel.MethodCall{Method: channel.MethodPlayTrackID, Arguments: args}), nil
}

// invoke dispatches call and renders the response envelope.
func (h *handlers) invoke(ctx context.Context, call channel.MethodCall) *mcp.CallToolResult {
	resp := h.dispatcher.Handle(ctx, call)
	h.logger.Debug("Tool call", zap.String("method", call.Method), zap.String("code", resp.Code()))

	switch {
	case resp.NotImplemented:
		return mcp.NewToolResultError(fmt.Sprintf("%s is not implemented on this system", call.Method))
	case resp.Err != nil:
		data, err := json.Marshal(resp.Err)
		if err != nil {
			return mcp.NewToolResultError(resp.Err.Error())
		}
		return mcp.NewToolResultError(string(data))
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

func (h *handlers) storefrontResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(map[string]string{"country_code": h.storefront()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal storefront: %w", err)
	}
	return jsonContents(request.Params.URI, data), nil
}

func (h *handlers) historyResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	// If the journal is disabled, return an empty array
	if h.journal == nil {
		return jsonContents(request.Params.URI, []byte("[]")), nil
	}

	submissions, err := h.journal.RecentQueues(ctx, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue history: %w", err)
	}
	if submissions == nil {
		submissions = []database.QueueSubmission{}
	}

	data, err := json.MarshalIndent(submissions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue history: %w", err)
	}
	return jsonContents(request.Params.URI, data), nil
}

func jsonContents(uri string, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}
