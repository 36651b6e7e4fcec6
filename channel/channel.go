// Package channel implements the "musickit" method channel: it decodes
// method calls, dispatches them to the gateway and encodes the result or a
// structured error.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"musickit/musickit"
)

// Name is the channel name hosts bind to.
const Name = "musickit"

// Method names accepted on the channel.
const (
	MethodCheckAuthorizationStatus = "checkAppleMusicAuthorizationStatus"
	MethodRequestPermission        = "appleMusicRequestPermission"
	MethodCheckPlaybackCapability  = "appleMusicCheckIfDeviceCanPlayback"
	MethodFetchUserToken           = "fetchUserToken"
	MethodPlayTrackID              = "appleMusicPlayTrackId"
)

// Methods lists every method in a stable order.
var Methods = []string{
	MethodCheckAuthorizationStatus,
	MethodRequestPermission,
	MethodCheckPlaybackCapability,
	MethodFetchUserToken,
	MethodPlayTrackID,
}

// Gateway is the set of operations the channel forwards to.
type Gateway interface {
	CheckAuthorizationStatus(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (string, error)
	CheckPlaybackCapability(ctx context.Context) (string, error)
	FetchUserToken(ctx context.Context, developerToken string) (string, error)
	PlayTrackIds(ctx context.Context, ids []string)
}

var _ Gateway = (*musickit.Gateway)(nil)

// Options configures a Dispatcher.
type Options struct {
	// Supported is false on OS versions below the minimum; every method then
	// answers not-implemented.
	Supported bool
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Dispatcher routes method calls to the gateway.
type Dispatcher struct {
	gateway   Gateway
	supported bool
	logger    *zap.Logger
	metrics   *Metrics
}

// NewDispatcher creates a dispatcher for the musickit channel.
func NewDispatcher(gateway Gateway, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		gateway:   gateway,
		supported: opts.Supported,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Name returns the channel name.
func (d *Dispatcher) Name() string {
	return Name
}

// Supported reports whether the version gate let the channel through.
func (d *Dispatcher) Supported() bool {
	return d.supported
}

// Handle answers a single method call.
func (d *Dispatcher) Handle(ctx context.Context, call MethodCall) Response {
	start := time.Now()
	resp := d.dispatch(ctx, call)

	label := call.Method
	if !isKnownMethod(label) {
		label = "unknown"
	}
	d.metrics.observe(label, resp.Code(), time.Since(start))

	d.logger.Debug("Handled method call",
		zap.String("method", call.Method),
		zap.String("code", resp.Code()),
		zap.Duration("elapsed", time.Since(start)))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, call MethodCall) Response {
	if !d.supported || !isKnownMethod(call.Method) {
		return NotImplemented()
	}

	switch call.Method {
	case MethodCheckAuthorizationStatus:
		ok, err := d.gateway.CheckAuthorizationStatus(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return Success(ok)

	case MethodRequestPermission:
		msg, err := d.gateway.RequestPermission(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return Success(msg)

	case MethodCheckPlaybackCapability:
		msg, err := d.gateway.CheckPlaybackCapability(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return Success(msg)

	case MethodFetchUserToken:
		var developerToken string
		if err := decodeArguments(call.Arguments, &developerToken); err != nil {
			return invalidArguments(call.Method, err)
		}
		token, err := d.gateway.FetchUserToken(ctx, developerToken)
		if err != nil {
			return errorResponse(err)
		}
		return Success(token)

	case MethodPlayTrackID:
		var ids []string
		if err := decodeArguments(call.Arguments, &ids); err != nil {
			return invalidArguments(call.Method, err)
		}
		d.gateway.PlayTrackIds(ctx, ids)
		return Success(nil)
	}

	return NotImplemented()
}

func isKnownMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

// decodeArguments leaves v at its zero value when no arguments were sent.
func decodeArguments(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrInvalidArguments, err)
	}
	return nil
}

func invalidArguments(method string, err error) Response {
	return Failure(NewChannelErrorWithDetails(
		musickit.KindInvalidArguments.Code(),
		"Invalid arguments for "+method,
		err.Error()))
}

// errorResponse translates a gateway error into its wire form.
func errorResponse(err error) Response {
	var e *musickit.Error
	if errors.As(err, &e) {
		if e.Details != "" {
			return Failure(NewChannelErrorWithDetails(e.Code(), e.Message, e.Details))
		}
		return Failure(NewChannelError(e.Code(), e.Message))
	}
	return Failure(NewChannelErrorWithDetails(musickit.KindUnknown.Code(), "Other Error", err.Error()))
}

// VersionSupported reports whether osVersion is at least minVersion. Plain
// versions such as "14.2" are accepted. An unparseable OS version is not
// supported; an empty minimum disables the gate.
func VersionSupported(osVersion, minVersion string) bool {
	if strings.TrimSpace(minVersion) == "" {
		return true
	}
	have, want := canonical(osVersion), canonical(minVersion)
	if !semver.IsValid(have) || !semver.IsValid(want) {
		return false
	}
	return semver.Compare(have, want) >= 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
