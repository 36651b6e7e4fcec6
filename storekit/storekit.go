// Package storekit talks to the native StoreKit helper. The helper wraps
// SKCloudServiceController and prints one JSON document per subcommand.
package storekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"musickit/musickit"
)

// Exported error variables for better error handling
var (
	ErrHelperFailed   = errors.New("StoreKit helper execution failed")
	ErrInvalidReply   = errors.New("invalid StoreKit helper reply")
	ErrHelperNotFound = errors.New("StoreKit helper not found")
)

// DefaultTimeout bounds every non-interactive helper call.
const DefaultTimeout = 15 * time.Second

// Subcommands understood by the helper.
const (
	cmdAuthorizationStatus  = "authorization-status"
	cmdRequestAuthorization = "request-authorization"
	cmdStorefront           = "storefront"
	cmdCapabilities         = "capabilities"
	cmdUserToken            = "user-token"
	cmdOSVersion            = "os-version"
)

// reply is the union of every helper response.
type reply struct {
	Status       string   `json:"status,omitempty"`
	CountryCode  *string  `json:"country_code,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	UserToken    string   `json:"user_token,omitempty"`
	Version      string   `json:"version,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Helper runs the StoreKit helper executable.
type Helper struct {
	Path    string
	Timeout time.Duration
	Logger  *zap.Logger
}

var _ musickit.CloudService = (*Helper)(nil)

// NewHelper creates a Helper for the executable at path.
func NewHelper(path string, timeout time.Duration, logger *zap.Logger) *Helper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Helper{Path: path, Timeout: timeout, Logger: logger}
}

// AuthorizationStatus implements musickit.CloudService.
func (h *Helper) AuthorizationStatus(ctx context.Context) (musickit.AuthorizationStatus, error) {
	r, err := h.run(ctx, cmdAuthorizationStatus, nil, true)
	if err != nil {
		return musickit.StatusUnknown, err
	}
	return musickit.ParseAuthorizationStatus(r.Status), nil
}

// RequestAuthorization implements musickit.CloudService. The call is not
// bounded by Timeout since the prompt waits for the user.
func (h *Helper) RequestAuthorization(ctx context.Context) (musickit.AuthorizationStatus, error) {
	r, err := h.run(ctx, cmdRequestAuthorization, nil, false)
	if err != nil {
		return musickit.StatusUnknown, err
	}
	return musickit.ParseAuthorizationStatus(r.Status), nil
}

// StorefrontCountryCode implements musickit.CloudService.
func (h *Helper) StorefrontCountryCode(ctx context.Context) (string, error) {
	r, err := h.run(ctx, cmdStorefront, nil, true)
	if err != nil {
		return "", err
	}
	if r.CountryCode == nil {
		return "", fmt.Errorf("%w: missing country_code", ErrInvalidReply)
	}
	return *r.CountryCode, nil
}

// Capabilities implements musickit.CloudService.
func (h *Helper) Capabilities(ctx context.Context) (musickit.Capability, error) {
	r, err := h.run(ctx, cmdCapabilities, nil, true)
	if err != nil {
		return musickit.CapabilityNone, err
	}
	var c musickit.Capability
	for _, name := range r.Capabilities {
		c |= musickit.ParseCapability(name)
	}
	return c, nil
}

// UserToken implements musickit.CloudService. The developer token is written
// to the helper's stdin so it never shows up in the process list.
func (h *Helper) UserToken(ctx context.Context, developerToken string) (string, error) {
	r, err := h.run(ctx, cmdUserToken, strings.NewReader(developerToken), true)
	if err != nil {
		return "", err
	}
	if r.UserToken == "" {
		return "", fmt.Errorf("%w: empty user_token", ErrInvalidReply)
	}
	return r.UserToken, nil
}

// OSVersion returns the operating system version reported by the helper,
// e.g. "14.2".
func (h *Helper) OSVersion(ctx context.Context) (string, error) {
	r, err := h.run(ctx, cmdOSVersion, nil, true)
	if err != nil {
		return "", err
	}
	if r.Version == "" {
		return "", fmt.Errorf("%w: empty version", ErrInvalidReply)
	}
	return r.Version, nil
}

// run executes one helper subcommand and decodes its reply. An "error"
// field in the reply is returned as an error.
func (h *Helper) run(ctx context.Context, subcommand string, stdin io.Reader, bounded bool) (*reply, error) {
	if h.Path == "" {
		return nil, ErrHelperNotFound
	}

	if bounded {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, h.Path, subcommand)
	cmd.WaitDelay = time.Second
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	h.logger().Debug("StoreKit helper finished",
		zap.String("subcommand", subcommand),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrHelperNotFound, h.Path)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrHelperFailed, subcommand, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrHelperFailed, subcommand, strings.TrimSpace(stderr.String()))
	}

	var r reply
	if err := json.Unmarshal(stdout.Bytes(), &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidReply, subcommand, err)
	}
	if r.Error != "" {
		return nil, errors.New(r.Error)
	}
	return &r, nil
}

func (h *Helper) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
