// Package adapter declares the capability every platform integration
// implements, so the router and promotion coordinator depend on one
// small interface rather than a duck-typed hierarchy of platform
// clients.
package adapter

import "github.com/l1jgo/hub/internal/model"

// Adapter is the boundary between the hub's platform-agnostic core and
// one concrete platform (the game proxy, the social bot, a federated
// bridge peer).
type Adapter interface {
	// Identity is the adapter's own subscriber identity, used by the
	// router to suppress echo back to the originating platform.
	Identity() string

	// Send delivers a rendered message to the platform's given channel.
	Send(channel string, rendered string) error

	// Announce delivers a system-originated message (promotion,
	// verification warning) that has no originating player.
	Announce(channel string, rendered string) error

	// SubscribeInbound registers a callback invoked for every inbound
	// message the platform receives, before it enters the filter chain.
	SubscribeInbound(fn func(model.ChatMessage))

	// SyncRole assigns the platform-native role or equivalent badge for
	// player's current rank, a no-op for platforms with no role concept.
	SyncRole(player model.PlayerIdentity, role string) error

	// Deliver renders and sends a routed message to this platform; it
	// satisfies router.Subscriber so every adapter can subscribe directly.
	Deliver(msg model.ChatMessage) error
}
