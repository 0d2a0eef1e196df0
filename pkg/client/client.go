// Package client defines the boundary to the routing daemon's
// northbound management interface. The CLI never applies configuration
// itself: commits, validation, and state reads all cross this boundary.
package client

import (
	"context"
	"fmt"

	"github.com/irino/holo-cli/pkg/configtree"
)

// StateEntry is one flat path/value pair of operational state.
type StateEntry struct {
	Path  string
	Value string
}

// StateDelta is one change streamed by a state subscription.
type StateDelta struct {
	Path    string
	Value   string
	Deleted bool
}

// Client is the daemon connection. Configuration snapshots travel as
// flat set-command lines, the daemon's wire representation.
type Client interface {
	// GetConfig fetches the daemon's committed configuration.
	GetConfig(ctx context.Context) (*configtree.Tree, error)

	// GetState reads operational state under the given path, relative
	// to the state root. An empty path reads everything.
	GetState(ctx context.Context, path []string) ([]StateEntry, error)

	// Validate asks the daemon to check a full candidate snapshot
	// without applying it.
	Validate(ctx context.Context, setLines []string) error

	// Commit atomically replaces the daemon's configuration with the
	// snapshot. The daemon either applies all of it or none of it.
	Commit(ctx context.Context, setLines []string, comment string) error

	// SubscribeState streams state changes until ctx is cancelled. The
	// returned channel is closed when the stream ends.
	SubscribeState(ctx context.Context, path []string) (<-chan StateDelta, error)

	// Version reports the daemon's software version.
	Version(ctx context.Context) (string, error)

	Close() error
}

// SemanticError is a daemon-side rejection of a configuration: the
// candidate is well-formed but violates a constraint only the daemon
// can evaluate. The reason is reported to the operator verbatim.
type SemanticError struct {
	Reason string
}

func (e *SemanticError) Error() string { return e.Reason }

// TransportError wraps a connectivity or protocol failure, as opposed
// to a daemon rejection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
