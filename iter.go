package grus

// rlinksLookup is satisfied by both *Reader and *Writer: both can
// answer "what child heads pid's sibling list" and "what is child's
// RLinks entry under pid", the two primitives childIDs needs to walk a
// sibling list. Keeping it as an interface lets Reader.ChildIDs and
// Writer.isDescendantOf share one cursor implementation instead of
// re-deriving the "follow .Next" loop twice, mirroring reader.rs's
// ChildIds helper being reused from both reader.rs and writer.rs in
// the original. Writer.deleteHelper does not use it: it repeatedly
// takes the head of the list via firstChild.
type rlinksLookup interface {
	firstChild(pid uint64) (uint64, error)
	rtriple(childID, pid uint64) (RTriple, bool, error)
}

// childIDs is a stateful, forward-only, single-pass cursor over one
// parent's sibling list. It is not safe to interleave with mutations
// to the same sibling list.
type childIDs struct {
	src     rlinksLookup
	pid     uint64
	current uint64
	err     error
}

func newChildIDs(src rlinksLookup, pid uint64) (*childIDs, error) {
	first, err := src.firstChild(pid)
	if err != nil {
		return nil, err
	}
	return &childIDs{src: src, pid: pid, current: first}, nil
}

// next returns the next child id, or 0 with ok=false at the end of the
// list. Once it returns an error, every subsequent call returns the
// same error.
func (c *childIDs) next() (id uint64, ok bool, err error) {
	if c.err != nil {
		return 0, false, c.err
	}
	if c.current == 0 {
		return 0, false, nil
	}
	id = c.current
	rt, found, err := c.src.rtriple(id, c.pid)
	if err != nil {
		c.err = err
		return 0, false, err
	}
	if !found {
		c.err = corruptedf("grus: sibling list of %d: missing RLinks entry for %d", c.pid, id)
		return 0, false, c.err
	}
	c.current = rt.Next
	return id, true, nil
}

// ChildIDIter is the public, forward-only iterator returned by
// Reader.ChildIDs.
type ChildIDIter struct {
	c *childIDs
}

// Next advances the iterator. It returns ok=false both at the end of
// the list and on error; callers must check Err after a false return
// to distinguish the two.
func (it *ChildIDIter) Next() (id uint64, ok bool) {
	id, ok, _ = it.c.next()
	return id, ok
}

// Err returns the first error encountered during iteration, if any.
func (it *ChildIDIter) Err() error { return it.c.err }
