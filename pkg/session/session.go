// Package session tracks one operator's mode state and drives the
// commit workflow against the daemon.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/irino/holo-cli/pkg/client"
	"github.com/irino/holo-cli/pkg/configstore"
	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

// State is the session's position in the mode state machine.
type State int

const (
	StateOperational State = iota
	StateConfiguration
	StateCommitting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateOperational:
		return "operational"
	case StateConfiguration:
		return "configuration"
	case StateCommitting:
		return "committing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// ErrNoChanges is returned by Commit when the candidate equals running.
var ErrNoChanges = fmt.Errorf("no configuration changes to commit")

// ErrUncommitted is returned by ExitConfig while changes are pending
// and force is false.
var ErrUncommitted = fmt.Errorf("uncommitted changes, use exit with discard or commit first")

// Session is one operator's connection to the daemon. Methods are
// serialized; the CLI drives a session from a single goroutine.
type Session struct {
	mu      sync.Mutex
	id      uuid.UUID
	state   State
	context configtree.Path // [edit] context within configuration mode
	store   *configstore.Store
	backend client.Client
	model   *schema.Model
	log     *slog.Logger
}

func New(model *schema.Model, backend client.Client, log *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		state:   StateOperational,
		store:   configstore.New(model),
		backend: backend,
		model:   model,
		log:     log.With("session", id.String()),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Context returns the current [edit] path, empty outside configuration
// mode or at the top level.
func (s *Session) Context() configtree.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.Clone()
}

func (s *Session) Store() *configstore.Store { return s.store }

// EnterConfig moves from operational to configuration mode, seeding
// the candidate from a fresh snapshot of the daemon's running
// configuration.
func (s *Session) EnterConfig(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOperational {
		return fmt.Errorf("cannot enter configuration mode from %s state", s.state)
	}
	running, err := s.backend.GetConfig(ctx)
	if err != nil {
		return err
	}
	s.store.ResetRunning(running)
	s.store.Begin()
	s.state = StateConfiguration
	s.context = nil
	s.log.Info("entered configuration mode")
	return nil
}

// ExitConfig leaves configuration mode. Pending changes block the exit
// unless force is set, in which case they are discarded.
func (s *Session) ExitConfig(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguration {
		return nil
	}
	if s.store.Dirty() && !force {
		return ErrUncommitted
	}
	s.store.End()
	s.state = StateOperational
	s.context = nil
	s.log.Info("left configuration mode")
	return nil
}

// Descend extends the [edit] context. Outside configuration mode, or
// when the target does not exist in the schema, it fails with
// NotFoundError.
func (s *Session) Descend(path configtree.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguration {
		return &configtree.NotFoundError{Path: path.String()}
	}

	target := append(s.context.Clone(), path...)
	sn := s.model.Resolve(target.Names())
	if sn == nil {
		return &configtree.NotFoundError{Path: target.String()}
	}
	for i, e := range target {
		esn := s.model.Resolve(target[:i+1].Names())
		if esn == nil || len(e.Keys) != len(esn.Keys) {
			return &configtree.NotFoundError{Path: target.String()}
		}
	}
	switch sn.Kind {
	case schema.KindContainer, schema.KindList:
	default:
		return &configtree.NotFoundError{Path: target.String()}
	}
	s.context = target
	return nil
}

// Ascend moves the [edit] context up one level; a no-op at the root.
func (s *Session) Ascend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.context) > 0 {
		s.context = s.context[:len(s.context)-1]
	}
}

// Top resets the [edit] context to the root.
func (s *Session) Top() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = nil
}

// Set applies a set operation to the candidate.
func (s *Session) Set(leaf *schema.Node, path configtree.Path, val string) error {
	if s.State() != StateConfiguration {
		return configstore.ErrNotEditing
	}
	return s.store.Set(leaf, path, val)
}

// Delete removes a candidate subtree or leaf-list value.
func (s *Session) Delete(path configtree.Path, val string) error {
	if s.State() != StateConfiguration {
		return configstore.ErrNotEditing
	}
	return s.store.Delete(path, val)
}

// CommitCheck validates the candidate locally and against the daemon
// without applying anything.
func (s *Session) CommitCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguration {
		return configstore.ErrNotEditing
	}
	if err := s.store.Check(); err != nil {
		return err
	}
	cand := s.store.Candidate()
	return s.backend.Validate(ctx, cand.SetLines())
}

// Commit validates and applies the candidate. On success the candidate
// becomes the new running configuration and the session returns to
// operational mode. On failure the session stays in configuration mode
// with the candidate exactly as submitted, so the operator can correct
// and retry. The daemon applies the snapshot atomically; there is no
// partial commit.
func (s *Session) Commit(ctx context.Context, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguration {
		return configstore.ErrNotEditing
	}
	diff := s.store.Diff()
	if len(diff) == 0 {
		return ErrNoChanges
	}
	if err := s.store.Check(); err != nil {
		return err
	}

	cand := s.store.Candidate()
	lines := cand.SetLines()

	s.state = StateCommitting
	s.log.Info("committing", "changes", len(diff))

	if err := s.backend.Validate(ctx, lines); err != nil {
		s.state = StateConfiguration
		s.log.Warn("commit validation failed", "err", err)
		return err
	}
	if err := s.backend.Commit(ctx, lines, comment); err != nil {
		s.state = StateConfiguration
		s.log.Warn("commit failed", "err", err)
		return err
	}

	if err := s.store.Promote(comment); err != nil {
		s.state = StateConfiguration
		return err
	}
	s.store.End()
	s.state = StateOperational
	s.context = nil
	s.log.Info("commit complete")
	return nil
}

// Discard resets the candidate to running. Idempotent.
func (s *Session) Discard() error {
	if s.State() != StateConfiguration {
		return configstore.ErrNotEditing
	}
	return s.store.Discard()
}

// Rollback loads a previous commit into the candidate.
func (s *Session) Rollback(n int) error {
	if s.State() != StateConfiguration {
		return configstore.ErrNotEditing
	}
	return s.store.Rollback(n)
}

// Close terminates the session and the daemon connection. Any state
// may disconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return nil
	}
	s.state = StateTerminated
	s.log.Info("session terminated")
	return s.backend.Close()
}
