package fork

import "github.com/crytic/multifork/events"

// RegistryEvents defines the event emitters for the lifecycle of a Registry's forks. Events are published after the
// registry's state reflects the change.
type RegistryEvents struct {
	// ForkCreated emits events when a fork is registered, before it is selected by CreateSelectFork.
	ForkCreated events.EventEmitter[ForkCreatedEvent]

	// ForkSelected emits events when a fork becomes the active fork.
	ForkSelected events.EventEmitter[ForkSelectedEvent]

	// ForkRolled emits events when a fork is re-anchored.
	ForkRolled events.EventEmitter[ForkRolledEvent]
}

// ForkCreatedEvent describes an event where a new fork was registered.
type ForkCreatedEvent struct {
	Registry *Registry
	Fork     *Fork
}

// ForkSelectedEvent describes an event where a fork was made active. Previous is nil if no fork was active.
type ForkSelectedEvent struct {
	Registry *Registry
	Fork     *Fork
	Previous *Fork
}

// ForkRolledEvent describes an event where a fork was re-anchored. PreviousAnchor is the anchor the fork was rooted
// at before the roll.
type ForkRolledEvent struct {
	Registry       *Registry
	Fork           *Fork
	PreviousAnchor Anchor
}
