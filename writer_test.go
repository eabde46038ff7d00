package grus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	grus "github.com/metent/grus-lib"
)

// collectChildren drains a Reader.ChildIDs iterator into a slice, in order.
func collectChildren(t *testing.T, r *grus.Reader, pid uint64) []uint64 {
	t.Helper()
	it, err := r.ChildIDs(pid)
	require.NoError(t, err)
	var out []uint64
	for {
		id, ok := it.Next()
		if !ok {
			require.NoError(t, it.Err())
			return out
		}
		out = append(out, id)
	}
}

func mustWriter(t *testing.T, s *grus.Store) *grus.Writer {
	t.Helper()
	w, err := s.Writer(context.Background())
	require.NoError(t, err)
	return w
}

func mustReader(t *testing.T, s *grus.Store) *grus.Reader {
	t.Helper()
	r, err := s.Reader(context.Background())
	require.NoError(t, err)
	return r
}

// S1/S2: children are prepended, so repeated AddChild under the same
// parent yields a sibling list in reverse insertion order.
func TestAddChild_PrependsNewHead(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	a, err := w.AddChild(0, "a")
	require.NoError(t, err)
	b, err := w.AddChild(0, "b")
	require.NoError(t, err)
	c, err := w.AddChild(0, "c")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	defer r.Close()
	require.Equal(t, []uint64{c, b, a}, collectChildren(t, r, 0))

	for _, want := range []struct {
		id   uint64
		name string
	}{{a, "a"}, {b, "b"}, {c, "c"}} {
		name, ok, err := r.Name(want.id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want.name, name)
	}
}

// P1: ids are assigned in strictly increasing order starting at 1.
func TestAddChild_IDsMonotonicallyIncreasing(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := w.AddChild(0, "x")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, w.Commit())
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
}

// S3: MoveUp/MoveDown reorder a sibling list without touching structure
// elsewhere (P2/P3: the sibling list remains a single well-formed chain).
func TestMoveUpMoveDown_ReorderSiblings(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	a, err := w.AddChild(0, "a")
	require.NoError(t, err)
	b, err := w.AddChild(0, "b")
	require.NoError(t, err)
	c, err := w.AddChild(0, "c")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	require.Equal(t, []uint64{c, b, a}, collectChildren(t, r, 0))
	r.Close()

	w = mustWriter(t, s)
	require.NoError(t, w.MoveUp(0, a))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	require.Equal(t, []uint64{c, a, b}, collectChildren(t, r, 0))
	r.Close()

	w = mustWriter(t, s)
	require.NoError(t, w.MoveDown(0, c))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	require.Equal(t, []uint64{a, c, b}, collectChildren(t, r, 0))
	r.Close()

	// No-ops at the boundaries.
	w = mustWriter(t, s)
	require.NoError(t, w.MoveUp(0, a))
	require.NoError(t, w.MoveDown(0, b))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	defer r.Close()
	require.Equal(t, []uint64{a, c, b}, collectChildren(t, r, 0))
}

// S4: Share adds an additional parentage; the shared node appears under
// both parents (P7: idempotent refusal on an existing direct child or
// on a would-be cycle).
func TestShare_AddsAdditionalParentage(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	p1, err := w.AddChild(0, "p1")
	require.NoError(t, err)
	p2, err := w.AddChild(0, "p2")
	require.NoError(t, err)
	child, err := w.AddChild(p1, "child")
	require.NoError(t, err)

	ok, err := w.Share(child, p2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	require.Equal(t, []uint64{child}, collectChildren(t, r, p1))
	require.Equal(t, []uint64{child}, collectChildren(t, r, p2))
	r.Close()

	// Re-sharing the same direct child is refused without error.
	w = mustWriter(t, s)
	ok, err = w.Share(child, p2)
	require.NoError(t, err)
	require.False(t, ok)

	// Sharing an ancestor onto its own descendant would close a cycle.
	ok, err = w.Share(p1, child)
	require.NoError(t, err)
	require.False(t, ok)
	w.Rollback()
}

// P6: Share refuses to close a cycle even several levels deep.
func TestShare_RefusesDeepCycle(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	a, err := w.AddChild(0, "a")
	require.NoError(t, err)
	b, err := w.AddChild(a, "b")
	require.NoError(t, err)
	c, err := w.AddChild(b, "c")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w = mustWriter(t, s)
	ok, err := w.Share(a, c)
	require.NoError(t, err)
	require.False(t, ok)
	w.Rollback()
}

// S4/S5: Cut re-parents a node; it disappears from its old parent's
// sibling list and appears under the new one, and nothing is destroyed.
func TestCut_ReparentsNode(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	p1, err := w.AddChild(0, "p1")
	require.NoError(t, err)
	p2, err := w.AddChild(0, "p2")
	require.NoError(t, err)
	child, err := w.AddChild(p1, "child")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w = mustWriter(t, s)
	ok, err := w.Cut(p1, child, p2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	require.Empty(t, collectChildren(t, r, p1))
	require.Equal(t, []uint64{child}, collectChildren(t, r, p2))
	name, ok, err := r.Name(child)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "child", name)
	r.Close()
}

// S5/P8: deleting a node's only parentage cascades: the node and its
// descendants are destroyed, but a sibling with another surviving
// parentage (shared in) is not.
func TestDelete_CascadesOnlyWhenLastParentageRemoved(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	parent, err := w.AddChild(0, "parent")
	require.NoError(t, err)
	other, err := w.AddChild(0, "other")
	require.NoError(t, err)
	child, err := w.AddChild(parent, "child")
	require.NoError(t, err)
	grandchild, err := w.AddChild(child, "grandchild")
	require.NoError(t, err)

	ok, err := w.Share(child, other)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Commit())

	// Removing one of child's two parentages must not destroy it.
	w = mustWriter(t, s)
	require.NoError(t, w.Delete(parent, child))
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	require.Empty(t, collectChildren(t, r, parent))
	require.Equal(t, []uint64{child}, collectChildren(t, r, other))
	name, ok, err := r.Name(child)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "child", name)
	r.Close()

	// Removing child's last remaining parentage destroys it and cascades
	// into grandchild.
	w = mustWriter(t, s)
	require.NoError(t, w.Delete(other, child))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	defer r.Close()
	require.Empty(t, collectChildren(t, r, other))
	_, ok, err = r.Name(child)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = r.Name(grandchild)
	require.NoError(t, err)
	require.False(t, ok)
}

// S6/P5: sessions are mirrored into both the forward and reverse index,
// and DeleteSession removes a session from the forward index.
func TestSessions_MirroredAndDeleted(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	task, err := w.AddChild(0, "task")
	require.NoError(t, err)

	s1 := grus.Session{Start: mustTime(t, "2026-01-01T09:00:00Z"), End: mustTime(t, "2026-01-01T10:00:00Z")}
	s2 := grus.Session{Start: mustTime(t, "2026-01-02T09:00:00Z"), End: mustTime(t, "2026-01-02T10:30:00Z")}

	require.NoError(t, w.AddSession(task, s2))
	require.NoError(t, w.AddSession(task, s1))
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	first, ok, err := r.FirstSession(task)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.Start.Equal(s1.Start))

	it, err := r.Sessions(task)
	require.NoError(t, err)
	e1, ok := it.Next()
	require.True(t, ok)
	require.True(t, e1.Session.Start.Equal(s1.Start))
	e2, ok := it.Next()
	require.True(t, ok)
	require.True(t, e2.Session.Start.Equal(s2.Start))
	_, ok = it.Next()
	require.False(t, ok)
	require.NoError(t, it.Err())

	allIt, err := r.AllSessions()
	require.NoError(t, err)
	first2, ok := allIt.Next()
	require.True(t, ok)
	require.True(t, first2.Session.Start.Equal(s1.Start))
	require.Equal(t, task, first2.ID)
	r.Close()

	w = mustWriter(t, s)
	require.NoError(t, w.DeleteSession(task, s1))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	defer r.Close()
	first, ok, err = r.FirstSession(task)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.Start.Equal(s2.Start))
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

// Rename/SetDueDate/UnsetDueDate round-trip via delete-then-put.
func TestRenameAndDueDate(t *testing.T) {
	s := openTemp(t)
	w := mustWriter(t, s)

	id, err := w.AddChild(0, "before")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w = mustWriter(t, s)
	require.NoError(t, w.Rename(id, "after"))
	due := mustTime(t, "2026-12-25T00:00:00Z")
	require.NoError(t, w.SetDueDate(id, due))
	require.NoError(t, w.Commit())

	r := mustReader(t, s)
	name, ok, err := r.Name(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "after", name)

	at, ok, err := r.DueDate(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, at.Equal(due))
	r.Close()

	w = mustWriter(t, s)
	require.NoError(t, w.UnsetDueDate(id))
	require.NoError(t, w.Commit())

	r = mustReader(t, s)
	defer r.Close()
	_, ok, err = r.DueDate(id)
	require.NoError(t, err)
	require.False(t, ok)
}
