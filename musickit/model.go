package musickit

import "strings"

// AuthorizationStatus is the operating system's current decision about
// whether this process may use Apple Music on the user's behalf.
type AuthorizationStatus string

const (
	StatusAuthorized    AuthorizationStatus = "authorized"
	StatusNotDetermined AuthorizationStatus = "not_determined"
	StatusDenied        AuthorizationStatus = "denied"
	StatusRestricted    AuthorizationStatus = "restricted"
	StatusUnknown       AuthorizationStatus = "unknown"
)

// ParseAuthorizationStatus maps a backend status string onto a known status.
// Anything unrecognised becomes StatusUnknown.
func ParseAuthorizationStatus(s string) AuthorizationStatus {
	switch AuthorizationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusAuthorized:
		return StatusAuthorized
	case StatusNotDetermined, "notdetermined":
		return StatusNotDetermined
	case StatusDenied:
		return StatusDenied
	case StatusRestricted:
		return StatusRestricted
	default:
		return StatusUnknown
	}
}

// Capability is the option set of cloud service capabilities reported for
// the signed-in user. Values match SKCloudServiceCapability.
type Capability uint

const (
	CapabilityNone                 Capability = 0
	CapabilityCatalogPlayback      Capability = 1 << 0
	CapabilitySubscriptionEligible Capability = 1 << 1
	CapabilityAddToCloudLibrary    Capability = 1 << 8
)

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool {
	return o != 0 && c&o == o
}

// CanPlayback reports whether the capability set permits catalog playback.
// Combined sets are accepted: a subscriber usually reports CatalogPlayback
// together with other bits, e.g. CatalogPlayback|AddToCloudLibrary.
func (c Capability) CanPlayback() bool {
	return c.Has(CapabilityCatalogPlayback) || c.Has(CapabilityAddToCloudLibrary)
}

// ParseCapability converts a capability name as printed by the helper.
func ParseCapability(name string) Capability {
	switch strings.TrimSpace(name) {
	case "musicCatalogPlayback", "catalog_playback":
		return CapabilityCatalogPlayback
	case "musicCatalogSubscriptionEligible", "subscription_eligible":
		return CapabilitySubscriptionEligible
	case "addToCloudMusicLibrary", "add_to_cloud_library":
		return CapabilityAddToCloudLibrary
	default:
		return CapabilityNone
	}
}

// DefaultStorefrontCountryCode is used until a refresh succeeds.
const DefaultStorefrontCountryCode = "us"

// Result messages returned on success.
const (
	MessageAuthorized        = "Successfully Authorized"
	MessageSubscriptionFound = "Apple Music subscription found"
)
