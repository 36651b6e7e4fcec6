package musickit

import "context"

// CloudService is the operating system's Apple Music service surface.
// Every method resolves exactly once.
type CloudService interface {
	// AuthorizationStatus reads the current status without prompting.
	AuthorizationStatus(ctx context.Context) (AuthorizationStatus, error)

	// RequestAuthorization prompts the user if needed and returns the
	// terminal decision.
	RequestAuthorization(ctx context.Context) (AuthorizationStatus, error)

	// StorefrontCountryCode returns the region code of the user's storefront.
	StorefrontCountryCode(ctx context.Context) (string, error)

	// Capabilities returns the capability set of the signed-in user.
	Capabilities(ctx context.Context) (Capability, error)

	// UserToken exchanges a developer token for a music user token.
	UserToken(ctx context.Context, developerToken string) (string, error)
}

// Player controls the system music player.
type Player interface {
	// SetQueue replaces the playback queue with the given store ids, in order.
	// A *PartialQueueError means some ids were skipped and the rest queued.
	SetQueue(ctx context.Context, ids []string) error

	// Play starts playback of the current queue.
	Play(ctx context.Context) error
}

// QueueJournal records queue submissions. err is nil, or a
// *PartialQueueError, when playback started.
type QueueJournal interface {
	RecordQueue(ctx context.Context, ids []string, err error) error
}
