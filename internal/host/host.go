// Package host declares the collaborator surfaces this engine talks to: the
// bridge into the player page, the playback clock, the rendered-caption
// reader, and the display surface that consumes normalized subtitle events.
// The underlying transport is out of scope; implementations live elsewhere.
package host

import "context"

// Bridge is the capability surface of the host player page. Every call is
// bounded by its context; implementations must not block indefinitely.
type Bridge interface {
	// IsSupportedPage reports whether the current page is one the engine
	// knows how to drive at all.
	IsSupportedPage() bool

	// CheckCapabilityScript reports whether the capability-injection script
	// is present and reachable.
	CheckCapabilityScript(ctx context.Context) (bool, error)

	// InjectCapabilityScript re-injects the capability script. Used as the
	// single retry when the presence probe fails.
	InjectCapabilityScript(ctx context.Context) error

	// CheckCapabilityAPIAvailable reports whether the player API announces
	// itself as available.
	CheckCapabilityAPIAvailable(ctx context.Context) (bool, error)

	// CheckPlayerReady reports whether the player is ready for track
	// operations.
	CheckPlayerReady(ctx context.Context) (bool, error)

	// FetchAvailableLanguages enumerates the subtitle languages the player
	// currently offers.
	FetchAvailableLanguages(ctx context.Context) ([]string, error)

	// GetCurrentActiveLanguage returns the code of the active text track.
	GetCurrentActiveLanguage(ctx context.Context) (string, error)

	// SwitchActiveLanguage makes the given language the active text track.
	// The active track is a single shared resource on the host; callers must
	// never switch concurrently.
	SwitchActiveLanguage(ctx context.Context, code string) error

	// TestFetchCapability performs a lightweight fetch self-test.
	TestFetchCapability(ctx context.Context) error

	// CurrentVideoID returns the identity of the video under playback.
	CurrentVideoID() string
}

// PlaybackClock samples the current playback position in seconds.
type PlaybackClock interface {
	CurrentTime() float64
}

// CaptionReader reads the caption text the host player has already rendered
// into the page. It backs the DOM-observation acquisition mode.
type CaptionReader interface {
	CurrentCaption() (string, error)
}

// DisplaySurface consumes the engine's normalized subtitle events.
type DisplaySurface interface {
	OnSubtitleChanged(payload SubtitlePayload)
}

// DocumentIntercepted is the inbound notification fired whenever a raw
// timed-text document becomes available. CacheKey follows the
// {language}_{videoId}[_extraParams] format.
type DocumentIntercepted struct {
	CacheKey string
	Raw      []byte
	Language string
}

// VideoIdentityChanged is the inbound notification for a playback identity
// switch.
type VideoIdentityChanged struct {
	OldID string
	NewID string
}
