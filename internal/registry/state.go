package registry

import (
	"sync"

	"github.com/viant/promptmcp/internal/catalog"
)

// Store is the RuntimeState of spec.md §3: the full set of parsed prompts
// (winners and non-winners alike, for introspection) plus the bookkeeping a
// reload needs to locate a document by file path and to find the live tool
// Handle currently serving an id. Every read/write replaces or mutates the
// three maps together under one lock, grounded on
// internal/workspace/hotswap/types.go's Reloadable/mutex-guarded-registry
// idiom: FullReload calls Publish to swap the whole snapshot atomically;
// SingleReload calls SetOne/RemoveOne for the incremental path.
type Store struct {
	mu sync.RWMutex

	byID     map[string]*catalog.Prompt
	byPath   map[string]string // file path -> id, for SingleReload(path)
	handles  map[string]Handle // id -> live tool Handle
	winners  []string          // ids, in registration/priority order
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[string]*catalog.Prompt),
		byPath:  make(map[string]string),
		handles: make(map[string]Handle),
	}
}

// Publish atomically replaces the whole snapshot: all documents (all, in
// spec.md's rank.Resolve terms — winners and non-winners), the winner-id
// order, and the file-path index. Tool Handles are left untouched;
// FullReload calls SetHandles once registration is complete.
func (s *Store) Publish(all []*catalog.Prompt, winners []*catalog.Prompt) {
	byID := make(map[string]*catalog.Prompt, len(all))
	byPath := make(map[string]string, len(all))
	for _, p := range all {
		byID[p.ID] = p
		byPath[p.FilePath] = p.ID
	}
	ids := make([]string, 0, len(winners))
	for _, w := range winners {
		ids = append(ids, w.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = byID
	s.byPath = byPath
	s.winners = ids
}

// SetHandles replaces the id -> Handle map wholesale, used once FullReload's
// dual-swap registration pass has produced fresh handles for every winner.
// Any handle left over from the previous generation that isn't present in
// handles is removed, completing the dual-swap (register-new-before-
// removing-old).
func (s *Store) SetHandles(handles map[string]Handle) {
	s.mu.Lock()
	old := s.handles
	s.handles = handles
	s.mu.Unlock()

	for id, h := range old {
		if handles[id] == nil {
			h.Remove()
		}
	}
}

// SetOne upserts a single document (and, if provided, its tool Handle),
// used by SingleReload's incremental path.
func (s *Store) SetOne(p *catalog.Prompt, h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[p.ID]; ok && old.FilePath != p.FilePath {
		delete(s.byPath, old.FilePath)
	}
	s.byID[p.ID] = p
	s.byPath[p.FilePath] = p.ID

	if h != nil {
		if prev, ok := s.handles[p.ID]; ok && prev != h {
			prev.Remove()
		}
		s.handles[p.ID] = h
	}

	if _, hasHandle := s.handles[p.ID]; !hasHandle {
		return
	}
	found := false
	for _, id := range s.winners {
		if id == p.ID {
			found = true
			break
		}
	}
	if !found {
		s.winners = append(s.winners, p.ID)
	}
}

// RemoveHandle drops only the live tool Handle for id, leaving the document
// entry in place. Used when a re-parsed document transitions into an
// ineligible state (warning/disabled) without disappearing from the
// snapshot: the id must stop resolving to a registered tool, but list/
// inspect still need to report on it.
func (s *Store) RemoveHandle(id string) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if ok {
		delete(s.handles, id)
	}
	for i, wid := range s.winners {
		if wid == id {
			s.winners = append(s.winners[:i], s.winners[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if ok {
		h.Remove()
	}
}

// RemoveOne drops the document and Handle previously registered under id,
// used when SingleReload observes a file deletion.
func (s *Store) RemoveOne(id string) {
	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		delete(s.byPath, p.FilePath)
	}
	h, hasHandle := s.handles[id]
	if hasHandle {
		delete(s.handles, id)
	}
	for i, wid := range s.winners {
		if wid == id {
			s.winners = append(s.winners[:i], s.winners[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if hasHandle {
		h.Remove()
	}
}

// Get returns the document registered under id.
func (s *Store) Get(id string) (*catalog.Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// IDForPath resolves a file path to the id it last produced, used by
// SingleReload to find the prior id for a deleted or renamed file.
func (s *Store) IDForPath(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath[path]
	return id, ok
}

// HandleFor returns the live tool Handle for id, if any.
func (s *Store) HandleFor(id string) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// List returns every document currently known, in no particular order. The
// control surface's list tool applies its own filtering/sorting on top.
func (s *Store) List() []*catalog.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*catalog.Prompt, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	return out
}

// Winners returns the ids currently holding a registered tool, in priority
// order.
func (s *Store) Winners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.winners))
	copy(out, s.winners)
	return out
}

// Stats summarizes the current snapshot for the control surface's stats
// tool and the system://health resource.
type Stats struct {
	Total     int
	Active    int
	Legacy    int
	Warning   int
	Disabled  int
	Invalid   int
	Tools     int
}

// Stats computes a fresh summary over the current snapshot.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.byID), Tools: len(s.handles)}
	for _, p := range s.byID {
		switch p.State {
		case catalog.StateActive:
			st.Active++
		case catalog.StateLegacy:
			st.Legacy++
		case catalog.StateWarning:
			st.Warning++
		case catalog.StateDisabled:
			st.Disabled++
		case catalog.StateInvalid:
			st.Invalid++
		}
	}
	return st
}
