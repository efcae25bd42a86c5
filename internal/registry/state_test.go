package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/promptmcp/internal/catalog"
)

type fakeHandle struct {
	id       string
	removed  bool
}

func (h *fakeHandle) ID() string { return h.id }
func (h *fakeHandle) Remove()    { h.removed = true }

func TestStorePublishAndGet(t *testing.T) {
	s := NewStore()
	a := &catalog.Prompt{ID: "a", FilePath: "a.yaml", State: catalog.StateActive}
	w := &catalog.Prompt{ID: "w", FilePath: "w.yaml", State: catalog.StateWarning}

	s.Publish([]*catalog.Prompt{a, w}, []*catalog.Prompt{a})

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = s.Get("w")
	require.True(t, ok)

	assert.Equal(t, []string{"a"}, s.Winners())
	assert.Len(t, s.List(), 2)

	id, ok := s.IDForPath("w.yaml")
	require.True(t, ok)
	assert.Equal(t, "w", id)
}

func TestStoreSetHandlesRemovesStale(t *testing.T) {
	s := NewStore()
	old := &fakeHandle{id: "a"}
	s.SetHandles(map[string]Handle{"a": old})

	fresh := &fakeHandle{id: "b"}
	s.SetHandles(map[string]Handle{"b": fresh})

	assert.True(t, old.removed)
	assert.False(t, fresh.removed)

	h, ok := s.HandleFor("b")
	require.True(t, ok)
	assert.Same(t, fresh, h)

	_, ok = s.HandleFor("a")
	assert.False(t, ok)
}

func TestStoreSetOneAndRemoveOne(t *testing.T) {
	s := NewStore()
	h := &fakeHandle{id: "x"}
	p := &catalog.Prompt{ID: "x", FilePath: "x.yaml", State: catalog.StateActive}
	s.SetOne(p, h)

	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, []string{"x"}, s.Winners())

	s.RemoveOne("x")
	_, ok = s.Get("x")
	assert.False(t, ok)
	assert.True(t, h.removed)
	assert.Empty(t, s.Winners())
}

func TestStoreSetOneReplacesPriorHandleForSameID(t *testing.T) {
	s := NewStore()
	p := &catalog.Prompt{ID: "x", FilePath: "x.yaml", State: catalog.StateActive}
	h1 := &fakeHandle{id: "x"}
	s.SetOne(p, h1)

	h2 := &fakeHandle{id: "x"}
	s.SetOne(p, h2)

	assert.True(t, h1.removed)
	assert.False(t, h2.removed)
	cur, ok := s.HandleFor("x")
	require.True(t, ok)
	assert.Same(t, h2, cur)
}

func TestStoreSetOneMovesFilePathIndexOnRename(t *testing.T) {
	s := NewStore()
	p1 := &catalog.Prompt{ID: "x", FilePath: "old.yaml", State: catalog.StateActive}
	s.SetOne(p1, nil)

	p2 := &catalog.Prompt{ID: "x", FilePath: "new.yaml", State: catalog.StateActive}
	s.SetOne(p2, nil)

	_, ok := s.IDForPath("old.yaml")
	assert.False(t, ok)
	id, ok := s.IDForPath("new.yaml")
	require.True(t, ok)
	assert.Equal(t, "x", id)
}

func TestStoreStats(t *testing.T) {
	s := NewStore()
	docs := []*catalog.Prompt{
		{ID: "a", State: catalog.StateActive},
		{ID: "b", State: catalog.StateLegacy},
		{ID: "c", State: catalog.StateWarning},
		{ID: "d", State: catalog.StateDisabled},
		{ID: "e", State: catalog.StateInvalid},
	}
	s.Publish(docs, []*catalog.Prompt{docs[0], docs[1]})
	s.SetHandles(map[string]Handle{"a": &fakeHandle{id: "a"}, "b": &fakeHandle{id: "b"}})

	st := s.Stats()
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Legacy)
	assert.Equal(t, 1, st.Warning)
	assert.Equal(t, 1, st.Disabled)
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 2, st.Tools)
}
