package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/irino/holo-cli/pkg/client"
	"github.com/irino/holo-cli/pkg/configstore"
	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

const testModel = `
name: session-test
version: "1"
nodes:
  - name: system
    kind: container
    children:
      - name: host-name
        kind: leaf
        type: string
  - name: interfaces
    kind: container
    children:
      - name: interface
        kind: list
        keys: [name]
        children:
          - name: name
            kind: leaf
            type: string
          - name: mtu
            kind: leaf
            type: uint16
            range: "68..9216"
  - name: protocols
    kind: container
    children:
      - name: bgp
        kind: container
        children:
          - name: as-number
            kind: leaf
            type: uint32
            mandatory: true
`

// fakeBackend is an in-memory daemon for session tests.
type fakeBackend struct {
	model       *schema.Model
	config      []string // running config as set lines
	validateErr error
	commitErr   error

	// When set, Commit signals entry on commitStarted and then blocks
	// until the commit context is cancelled.
	commitStarted chan struct{}

	validated [][]string
	committed [][]string
	closed    bool
}

func (f *fakeBackend) GetConfig(ctx context.Context) (*configtree.Tree, error) {
	return configtree.FromSetLines(f.model, f.config)
}

func (f *fakeBackend) GetState(ctx context.Context, path []string) ([]client.StateEntry, error) {
	return nil, nil
}

func (f *fakeBackend) Validate(ctx context.Context, setLines []string) error {
	f.validated = append(f.validated, setLines)
	return f.validateErr
}

func (f *fakeBackend) Commit(ctx context.Context, setLines []string, comment string) error {
	if f.commitStarted != nil {
		close(f.commitStarted)
		f.commitStarted = nil
		<-ctx.Done()
		return &client.TransportError{Op: "commit", Err: ctx.Err()}
	}
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, setLines)
	f.config = setLines
	return nil
}

func (f *fakeBackend) SubscribeState(ctx context.Context, path []string) (<-chan client.StateDelta, error) {
	ch := make(chan client.StateDelta)
	close(ch)
	return ch, nil
}

func (f *fakeBackend) Version(ctx context.Context) (string, error) { return "test", nil }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func newTestSession(t *testing.T, running ...string) (*Session, *fakeBackend) {
	t.Helper()
	m, err := schema.Load([]byte(testModel))
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	backend := &fakeBackend{model: m, config: running}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(m, backend, log), backend
}

func set(t *testing.T, s *Session, line string) {
	t.Helper()
	tokens := strings.Fields(line)
	path, leaf, rest, err := configtree.ParsePath(s.Store().Model(), tokens)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	val := ""
	if len(rest) > 0 {
		val = rest[0]
	}
	if err := s.Set(leaf, path, val); err != nil {
		t.Fatalf("set %q: %v", line, err)
	}
}

func TestEnterConfigSeedsRunning(t *testing.T) {
	s, _ := newTestSession(t, "system host-name r1", "protocols bgp as-number 65000")

	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if s.State() != StateConfiguration {
		t.Fatalf("state = %v", s.State())
	}
	if !strings.Contains(s.Store().ShowRunning(), "host-name r1") {
		t.Fatal("running not seeded from backend")
	}

	// Reentry from configuration mode is rejected.
	if err := s.EnterConfig(context.Background()); err == nil {
		t.Fatal("enter from configuration state should fail")
	}
}

func TestDescendAscend(t *testing.T) {
	s, _ := newTestSession(t)

	// Outside configuration mode descend is not permitted.
	err := s.Descend(configtree.Path{{Name: "system"}})
	if _, ok := err.(*configtree.NotFoundError); !ok {
		t.Fatalf("want NotFoundError, got %v", err)
	}

	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Descend(configtree.Path{{Name: "interfaces"}}); err != nil {
		t.Fatalf("descend: %v", err)
	}
	if err := s.Descend(configtree.Path{{Name: "interface", Keys: []string{"eth0"}}}); err != nil {
		t.Fatalf("descend list entry: %v", err)
	}
	if got := s.Context().String(); got != "interfaces interface eth0" {
		t.Fatalf("context = %q", got)
	}

	// A leaf is not a context, nor is an unknown name.
	if err := s.Descend(configtree.Path{{Name: "mtu"}}); err == nil {
		t.Fatal("descend to a leaf should fail")
	}
	if err := s.Descend(configtree.Path{{Name: "bogus"}}); err == nil {
		t.Fatal("descend to unknown should fail")
	}

	s.Ascend()
	if got := s.Context().String(); got != "interfaces" {
		t.Fatalf("context after ascend = %q", got)
	}
	s.Ascend()
	s.Ascend() // no-op at root
	if len(s.Context()) != 0 {
		t.Fatalf("context = %q", s.Context())
	}

	// ascend then descend returns to an equivalent context.
	if err := s.Descend(configtree.Path{{Name: "interfaces"}}); err != nil {
		t.Fatal(err)
	}
	s.Ascend()
	if err := s.Descend(configtree.Path{{Name: "interfaces"}}); err != nil {
		t.Fatal(err)
	}
	if got := s.Context().String(); got != "interfaces" {
		t.Fatalf("context = %q", got)
	}
}

func TestCommitSuccess(t *testing.T) {
	s, backend := newTestSession(t, "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}

	set(t, s, "system host-name r1")
	if err := s.Commit(context.Background(), "hostname"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.State() != StateOperational {
		t.Fatalf("state after commit = %v", s.State())
	}
	if len(backend.validated) != 1 || len(backend.committed) != 1 {
		t.Fatalf("backend calls: validated=%d committed=%d",
			len(backend.validated), len(backend.committed))
	}
	if !strings.Contains(s.Store().ShowRunning(), "host-name r1") {
		t.Fatal("running not promoted")
	}
	if s.Store().Editing() {
		t.Fatal("candidate should be dropped after commit")
	}
}

func TestCommitNoChanges(t *testing.T) {
	s, _ := newTestSession(t, "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(context.Background(), ""); err != ErrNoChanges {
		t.Fatalf("got %v, want ErrNoChanges", err)
	}
}

func TestCommitLocalCheckBlocksBackend(t *testing.T) {
	s, backend := newTestSession(t)
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}

	// bgp without its mandatory as-number fails the local check.
	set(t, s, "protocols bgp")
	err := s.Commit(context.Background(), "")
	if _, ok := err.(*configstore.CheckError); !ok {
		t.Fatalf("want CheckError, got %v", err)
	}
	if len(backend.validated) != 0 {
		t.Fatal("backend must not see a locally invalid candidate")
	}
	if s.State() != StateConfiguration {
		t.Fatalf("state = %v", s.State())
	}
}

func TestCommitRejectionLeavesEverything(t *testing.T) {
	s, backend := newTestSession(t, "system host-name r1", "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}

	backend.commitErr = &client.SemanticError{Reason: "as-number conflicts with peer group"}
	set(t, s, "system host-name r2")

	err := s.Commit(context.Background(), "")
	semErr, ok := err.(*client.SemanticError)
	if !ok {
		t.Fatalf("want SemanticError, got %v", err)
	}
	if semErr.Reason != "as-number conflicts with peer group" {
		t.Fatalf("reason not preserved verbatim: %q", semErr.Reason)
	}

	// Atomicity: running untouched, candidate exactly as submitted.
	if s.State() != StateConfiguration {
		t.Fatalf("state = %v", s.State())
	}
	if !strings.Contains(s.Store().ShowRunning(), "host-name r1") {
		t.Fatal("running changed by failed commit")
	}
	text, err := s.Store().ShowCandidate(nil)
	if err != nil || !strings.Contains(text, "host-name r2") {
		t.Fatalf("candidate reverted by failed commit: %q %v", text, err)
	}

	// Correct and retry.
	backend.commitErr = nil
	if err := s.Commit(context.Background(), ""); err != nil {
		t.Fatalf("retry commit: %v", err)
	}
}

func TestCommitCancelReturnsToConfiguration(t *testing.T) {
	s, backend := newTestSession(t, "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	set(t, s, "system host-name r2")
	before := s.Store().Candidate().Format()

	started := make(chan struct{})
	backend.commitStarted = started
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := s.Commit(ctx, "")
	var terr *client.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("want TransportError, got %v", err)
	}

	// The session drops back to configuration mode with the candidate
	// exactly as submitted.
	if s.State() != StateConfiguration {
		t.Fatalf("state = %v", s.State())
	}
	if got := s.Store().Candidate().Format(); got != before {
		t.Fatalf("candidate changed by cancelled commit:\n%s", got)
	}
	if !s.Store().Dirty() {
		t.Fatal("candidate should remain pending")
	}

	// Retry with a live context succeeds.
	if err := s.Commit(context.Background(), ""); err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if s.State() != StateOperational {
		t.Fatalf("state after retry = %v", s.State())
	}
}

func TestCommitCheck(t *testing.T) {
	s, backend := newTestSession(t, "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	set(t, s, "system host-name r1")

	if err := s.CommitCheck(context.Background()); err != nil {
		t.Fatalf("commit check: %v", err)
	}
	if len(backend.committed) != 0 {
		t.Fatal("commit check must not apply")
	}
	if s.State() != StateConfiguration {
		t.Fatalf("state = %v", s.State())
	}
}

func TestDiscardIdempotent(t *testing.T) {
	s, _ := newTestSession(t, "protocols bgp as-number 65000")
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	set(t, s, "system host-name r1")

	if err := s.Discard(); err != nil {
		t.Fatal(err)
	}
	once, err := s.Store().ShowCandidate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Discard(); err != nil {
		t.Fatal(err)
	}
	twice, err := s.Store().ShowCandidate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Fatal("discard is not idempotent")
	}
	if s.Store().Dirty() {
		t.Fatal("candidate dirty after discard")
	}
}

func TestExitConfigGuardsDirty(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.EnterConfig(context.Background()); err != nil {
		t.Fatal(err)
	}
	set(t, s, "system host-name r1")

	if err := s.ExitConfig(false); err != ErrUncommitted {
		t.Fatalf("got %v, want ErrUncommitted", err)
	}
	if err := s.ExitConfig(true); err != nil {
		t.Fatalf("forced exit: %v", err)
	}
	if s.State() != StateOperational {
		t.Fatalf("state = %v", s.State())
	}
}

func TestCloseTerminates(t *testing.T) {
	s, backend := newTestSession(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateTerminated || !backend.closed {
		t.Fatalf("state = %v, closed = %v", s.State(), backend.closed)
	}
	// Closing twice is harmless.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
