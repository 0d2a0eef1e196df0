// Package configstore implements Junos-style candidate/running
// configuration management with commit history and rollback support.
package configstore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
	"github.com/irino/holo-cli/pkg/value"
)

// ErrNotEditing is returned for candidate operations outside a
// configuration transaction.
var ErrNotEditing = fmt.Errorf("not in configuration mode")

// Store manages the running and candidate configuration trees. The
// running tree mirrors the daemon's committed configuration; the
// candidate exists only while a configuration transaction is open.
type Store struct {
	mu        sync.RWMutex
	model     *schema.Model
	running   *configtree.Tree
	candidate *configtree.Tree
	history   *History
}

// New creates a store with an empty running configuration.
func New(model *schema.Model) *Store {
	return &Store{
		model:   model,
		running: configtree.New(),
		history: NewHistory(50),
	}
}

// Model returns the schema model the store validates against.
func (s *Store) Model() *schema.Model {
	return s.model
}

// ResetRunning installs a freshly fetched running configuration,
// discarding any open candidate.
func (s *Store) ResetRunning(tree *configtree.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = tree.Clone()
	s.candidate = nil
}

// Begin opens a configuration transaction by cloning running into a
// new candidate. Reentrant: an already open candidate is kept.
func (s *Store) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		s.candidate = s.running.Clone()
	}
}

// End closes the transaction, dropping the candidate.
func (s *Store) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidate = nil
}

// Editing reports whether a configuration transaction is open.
func (s *Store) Editing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidate != nil
}

// Dirty reports whether the candidate differs from running. A change
// that is later reverted in the same transaction leaves the store
// clean.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidate != nil && !configtree.Equal(s.candidate, s.running)
}

// Set applies a set operation to the candidate. leaf is the schema
// node the path resolves to; when it is a leaf or leaf-list, val is
// validated against its type before the tree is touched.
func (s *Store) Set(leaf *schema.Node, path configtree.Path, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	if leaf != nil && (leaf.Kind == schema.KindLeaf || leaf.Kind == schema.KindLeafList) {
		if _, err := value.Validate(leaf, val); err != nil {
			return err
		}
	}
	s.candidate.Set(leaf, path, val)
	return nil
}

// Delete removes the candidate subtree at path. For leaf-lists a
// non-empty val removes only that value.
func (s *Store) Delete(path configtree.Path, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	return s.candidate.Delete(path, val)
}

// Diff returns the schema-ordered change set from running to
// candidate.
func (s *Store) Diff() []configtree.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return nil
	}
	return configtree.Diff(s.model, s.running, s.candidate)
}

// Candidate returns a deep copy of the candidate tree, or nil outside
// a transaction.
func (s *Store) Candidate() *configtree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return nil
	}
	return s.candidate.Clone()
}

// Running returns a deep copy of the running tree.
func (s *Store) Running() *configtree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running.Clone()
}

// Promote makes the candidate the new running configuration after a
// successful commit, pushing the previous running onto the history
// ring. The candidate is re-seeded from the new running so editing may
// continue.
func (s *Store) Promote(comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	s.history.Push(&HistoryEntry{
		Tree:      s.running,
		Timestamp: time.Now(),
		Comment:   comment,
	})
	s.running = s.candidate
	s.candidate = s.running.Clone()
	return nil
}

// Rollback reverts the candidate to a previous configuration. n=0
// reverts to running; n>0 loads the nth previous commit.
func (s *Store) Rollback(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	if n == 0 {
		s.candidate = s.running.Clone()
		return nil
	}
	entry, err := s.history.Get(n - 1)
	if err != nil {
		return err
	}
	s.candidate = entry.Tree.Clone()
	return nil
}

// Discard throws away uncommitted candidate changes.
func (s *Store) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	s.candidate = s.running.Clone()
	return nil
}

// HistoryList returns commit snapshots, most recent first.
func (s *Store) HistoryList() []*HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.List()
}

// ShowCandidate returns the candidate subtree at path as hierarchical
// text. An empty path formats the whole tree.
func (s *Store) ShowCandidate(path configtree.Path) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.candidate == nil {
		return "", ErrNotEditing
	}
	return formatAt(s.candidate, path)
}

// ShowRunning returns the running configuration as hierarchical text.
func (s *Store) ShowRunning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running.Format()
}

// ShowCandidateSet returns the candidate configuration as flat set
// commands.
func (s *Store) ShowCandidateSet() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.candidate == nil {
		return "", ErrNotEditing
	}
	return s.candidate.FormatSet(), nil
}

func formatAt(t *configtree.Tree, path configtree.Path) (string, error) {
	if len(path) == 0 {
		return t.Format(), nil
	}
	n := t.Get(path)
	if n == nil {
		return "", &configtree.NotFoundError{Path: path.String()}
	}
	sub := &configtree.Tree{Children: []*configtree.Node{n}}
	return sub.Format(), nil
}

// ShowCompare returns the set-command difference between running and
// candidate, "-" for removed lines and "+" for added lines.
func (s *Store) ShowCompare() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.candidate == nil {
		return "", ErrNotEditing
	}

	runningLines := s.running.SetLines()
	candidateLines := s.candidate.SetLines()

	runningSet := make(map[string]bool, len(runningLines))
	for _, line := range runningLines {
		runningSet[line] = true
	}
	candidateSet := make(map[string]bool, len(candidateLines))
	for _, line := range candidateLines {
		candidateSet[line] = true
	}

	var b strings.Builder
	for _, line := range runningLines {
		if !candidateSet[line] {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	for _, line := range candidateLines {
		if !runningSet[line] {
			fmt.Fprintf(&b, "+ %s\n", line)
		}
	}
	if b.Len() == 0 {
		return "[no changes]\n", nil
	}
	return b.String(), nil
}
