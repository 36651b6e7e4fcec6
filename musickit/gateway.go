// Package musickit gates access to Apple Music behind the user's
// authorization decision and forwards the remaining calls to the
// operating system's media services.
package musickit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStorefrontTimeout bounds a single background storefront refresh.
const DefaultStorefrontTimeout = 10 * time.Second

// Options configures a Gateway.
type Options struct {
	Logger            *zap.Logger
	Journal           QueueJournal
	StorefrontTimeout time.Duration
}

// Gateway implements the Apple Music operations exposed on the channel.
type Gateway struct {
	service CloudService
	player  Player
	journal QueueJournal
	logger  *zap.Logger

	storefront        *storefront
	storefrontTimeout time.Duration
	refreshes         sync.WaitGroup

	// Holds a token while a permission prompt is in flight.
	prompt chan struct{}
}

// NewGateway creates a gateway over the given service and player.
func NewGateway(service CloudService, player Player, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.StorefrontTimeout
	if timeout <= 0 {
		timeout = DefaultStorefrontTimeout
	}
	return &Gateway{
		service:           service,
		player:            player,
		journal:           opts.Journal,
		logger:            logger,
		storefront:        newStorefront(DefaultStorefrontCountryCode),
		storefrontTimeout: timeout,
		prompt:            make(chan struct{}, 1),
	}
}

// StorefrontCountryCode returns the cached storefront country code.
func (g *Gateway) StorefrontCountryCode() string {
	return g.storefront.get()
}

// Wait blocks until every background storefront refresh has finished.
func (g *Gateway) Wait() {
	g.refreshes.Wait()
}

// CheckAuthorizationStatus reports whether the user has authorized access.
// It never prompts. An authorized status also refreshes the storefront.
func (g *Gateway) CheckAuthorizationStatus(ctx context.Context) (bool, error) {
	const op = "CheckAuthorizationStatus"

	status, err := g.service.AuthorizationStatus(ctx)
	if err != nil {
		g.logger.Warn("Failed to read authorization status", zap.Error(err))
		status = StatusUnknown
	}

	switch status {
	case StatusAuthorized:
		g.refreshStorefront(ctx)
		return true, nil
	case StatusNotDetermined, StatusDenied, StatusRestricted:
		return false, nil
	}

	details := "authorization status"
	if err != nil {
		details = err.Error()
	}
	return false, &Error{
		Op:      op,
		Kind:    KindUnknownResponse,
		Message: "Unknown response from Apple Music",
		Details: details,
		Err:     err,
	}
}

// RequestPermission prompts the user for access and returns a message on
// success. Every other decision is returned as an *Error. Only one prompt is
// shown at a time; later callers wait for it unless their context ends.
func (g *Gateway) RequestPermission(ctx context.Context) (string, error) {
	const op = "RequestPermission"

	// Wait for any pending prompt, or give up with the caller.
	select {
	case g.prompt <- struct{}{}:
	case <-ctx.Done():
		return "", &Error{Op: op, Kind: KindUnknown, Message: "Other Error", Details: ctx.Err().Error(), Err: ctx.Err()}
	}
	defer func() { <-g.prompt }()

	if current, err := g.service.AuthorizationStatus(ctx); err != nil {
		g.logger.Warn("Failed to read authorization status", zap.Error(err))
	} else {
		g.logger.Debug("Requesting authorization", zap.String("current", string(current)))
	}

	status, err := g.service.RequestAuthorization(ctx)
	if err != nil {
		g.logger.Warn("Authorization request failed", zap.Error(err))
		return "", &Error{Op: op, Kind: KindUnknown, Message: "Other Error", Details: err.Error(), Err: err}
	}

	g.logger.Debug("Authorization request resolved", zap.String("status", string(status)))

	switch status {
	case StatusAuthorized:
		g.refreshStorefront(ctx)
		return MessageAuthorized, nil
	case StatusDenied:
		return "", &Error{
			Op:      op,
			Kind:    KindDenied,
			Message: "User denied permission",
			Details: "The user tapped 'Don't allow'",
		}
	case StatusNotDetermined:
		return "", &Error{
			Op:      op,
			Kind:    KindNotDetermined,
			Message: "Not determined if confirmed or denied",
			Details: "The user hasn't decided or it's not clear whether they've confirmed or denied.",
		}
	case StatusRestricted:
		return "", &Error{
			Op:      op,
			Kind:    KindUnavailable,
			Message: "User may be restricted",
			Details: "Access is restricted on this device, for example by Education mode or parental controls.",
		}
	default:
		return "", &Error{Op: op, Kind: KindUnknown, Message: "Other Error", Details: "Not Known"}
	}
}

// CheckPlaybackCapability reports whether the user's subscription allows
// catalog playback.
func (g *Gateway) CheckPlaybackCapability(ctx context.Context) (string, error) {
	const op = "CheckPlaybackCapability"

	capability, err := g.service.Capabilities(ctx)
	if err != nil {
		return "", &Error{Op: op, Kind: KindUnavailable, Message: "Error Encountered", Details: err.Error(), Err: err}
	}
	if capability.CanPlayback() {
		return MessageSubscriptionFound, nil
	}
	return "", &Error{Op: op, Kind: KindUnavailable, Message: "Apple Music subscription not available"}
}

// FetchUserToken exchanges developerToken for a music user token. The token
// is returned untouched.
func (g *Gateway) FetchUserToken(ctx context.Context, developerToken string) (string, error) {
	const op = "FetchUserToken"

	if strings.TrimSpace(developerToken) == "" {
		return "", &Error{
			Op:      op,
			Kind:    KindInvalidArguments,
			Message: "Developer token is required",
			Err:     ErrEmptyDeveloperToken,
		}
	}

	g.refreshStorefront(ctx)

	token, err := g.service.UserToken(ctx, developerToken)
	if err != nil {
		return "", &Error{Op: op, Kind: KindUnavailable, Message: "Error Encountered", Details: err.Error(), Err: err}
	}
	return token, nil
}

// PlayTrackIds replaces the system player's queue with ids and starts
// playback. Failures are logged and journalled, never returned.
func (g *Gateway) PlayTrackIds(ctx context.Context, ids []string) {
	var partial *PartialQueueError

	err := g.player.SetQueue(ctx, ids)
	if err != nil && !errors.As(err, &partial) {
		err = fmt.Errorf("set queue: %w", err)
	} else if playErr := g.player.Play(ctx); playErr != nil {
		err = fmt.Errorf("play: %w", playErr)
	} else if partial != nil {
		err = fmt.Errorf("set queue: %w", partial)
	}

	switch {
	case err == nil:
		g.logger.Debug("Playback started", zap.Int("count", len(ids)))
	case partial != nil && errors.As(err, &partial):
		g.logger.Warn("Playback started without some tracks", zap.Strings("missing", partial.Missing))
	default:
		g.logger.Warn("Playback queue rejected", zap.Strings("ids", ids), zap.Error(err))
	}

	if g.journal != nil {
		if jerr := g.journal.RecordQueue(ctx, ids, err); jerr != nil {
			g.logger.Warn("Failed to journal queue submission", zap.Error(jerr))
		}
	}
}

// refreshStorefront updates the cached storefront country code in the
// background. It does nothing unless the user is authorized at the time
// it runs, and it never reports failure to the caller.
func (g *Gateway) refreshStorefront(ctx context.Context) {
	g.refreshes.Add(1)
	go func() {
		defer g.refreshes.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.storefrontTimeout)
		defer cancel()

		status, err := g.service.AuthorizationStatus(ctx)
		if err != nil || status != StatusAuthorized {
			return
		}

		code, err := g.service.StorefrontCountryCode(ctx)
		if err != nil {
			g.logger.Warn("An error occurred when requesting storefront country code", zap.Error(err))
			return
		}
		if code == "" {
			g.logger.Warn("Unexpected empty storefront country code")
			return
		}

		previous := g.storefront.get()
		g.storefront.set(code)
		if previous != code {
			g.logger.Info("Storefront country code updated", zap.String("from", previous), zap.String("to", code))
		}
	}()
}
