package grus

import (
	"time"

	"github.com/metent/grus-lib/kv"
	"github.com/metent/grus-lib/kv/boltkv"
)

var emptyVal = []byte{}

// Writer holds the exclusive write transaction and the in-memory id
// counter. Commit persists the counter and commits the transaction;
// Rollback discards the writer without committing and leaves the store
// byte-identical to before the writer was opened. A Writer that is
// neither committed nor rolled back keeps the write transaction open,
// so no other Writer can start and Store.Close waits on it.
type Writer struct {
	tx        kv.RwTx
	meta      kv.RwBucket
	links     kv.RwBucket
	rlinks    kv.RwBucket
	names     kv.RwBucket
	dueDates  kv.RwBucket
	sessions  kv.RwBucket
	rsessions kv.RwBucket
	counter   uint64
}

func newWriter(tx kv.RwTx) (*Writer, error) {
	w := &Writer{tx: tx}
	var err error
	if w.meta, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotCounter)); err != nil {
		return nil, err
	}
	if w.links, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotLinks)); err != nil {
		return nil, err
	}
	if w.rlinks, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotRLinks)); err != nil {
		return nil, err
	}
	if w.names, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotNames)); err != nil {
		return nil, err
	}
	if w.dueDates, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotDueDates)); err != nil {
		return nil, err
	}
	if w.sessions, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotSessions)); err != nil {
		return nil, err
	}
	if w.rsessions, err = tx.RwBucket(boltkv.BucketName(boltkv.SlotRSessions)); err != nil {
		return nil, err
	}
	v, err := w.meta.Get(counterKey)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, corruptedf("grus: writer: counter root slot missing")
	}
	w.counter = decodeU64(v)
	return w, nil
}

// Rollback discards every change made through this writer.
func (w *Writer) Rollback() { w.tx.Rollback() }

// Commit persists the counter and all six index roots: the index
// buckets are already part of the write transaction's pending state,
// so only the scalar counter needs an explicit write before the
// underlying transaction commits.
func (w *Writer) Commit() error {
	if err := w.meta.Put(counterKey, encodeU64(w.counter)); err != nil {
		return err
	}
	return w.tx.Commit()
}

// AddChild prepends a fresh node to pid's sibling list and returns
// its new id.
func (w *Writer) AddChild(pid uint64, name string) (uint64, error) {
	assertf(len(name) != 0, "grus: AddChild: name must not be empty")

	next, err := w.firstChild(pid)
	if err != nil {
		return 0, err
	}
	id := w.counter

	if err := w.setFirstChild(pid, id); err != nil {
		return 0, err
	}
	if err := w.putRT(id, RTriple{Pid: pid, Next: next, Prev: 0}); err != nil {
		return 0, err
	}
	if next > 0 {
		if err := w.modifyRT(next, pid, func(rt *RTriple) { rt.Prev = id }); err != nil {
			return 0, err
		}
	}
	if err := w.names.Put(encodeU64(id), []byte(name)); err != nil {
		return 0, err
	}
	w.counter++
	return id, nil
}

// AddSession mirrors the (id, Session) pair into Sessions and RSessions.
func (w *Writer) AddSession(id uint64, s Session) error {
	if err := w.sessions.Put(sessionsKey(id, s), emptyVal); err != nil {
		return err
	}
	return w.rsessions.Put(rsessionsKey(s, id), emptyVal)
}

// DeleteSession removes the (id, Session) pair from Sessions and RSessions.
func (w *Writer) DeleteSession(id uint64, s Session) error {
	if err := w.sessions.Delete(sessionsKey(id, s)); err != nil {
		return err
	}
	return w.rsessions.Delete(rsessionsKey(s, id))
}

// Rename replaces id's name via delete-then-put.
func (w *Writer) Rename(id uint64, name string) error {
	if err := w.names.Delete(encodeU64(id)); err != nil {
		return err
	}
	return w.names.Put(encodeU64(id), []byte(name))
}

// SetDueDate replaces id's due date via delete-then-put.
func (w *Writer) SetDueDate(id uint64, at time.Time) error {
	if err := w.dueDates.Delete(encodeU64(id)); err != nil {
		return err
	}
	return w.dueDates.Put(encodeU64(id), DueDate{At: at}.encode())
}

// UnsetDueDate clears id's due date. Idempotent on a missing key.
func (w *Writer) UnsetDueDate(id uint64) error {
	return w.dueDates.Delete(encodeU64(id))
}

// Delete removes one parentage of id under pid, cascading into
// deleteHelper, which destroys id and recurses into its children only
// once id's last parentage is gone.
func (w *Writer) Delete(pid, id uint64) error {
	if _, err := w.delLinksIfEqual(pid, id); err != nil {
		return err
	}

	rt, ok, err := w.rtriple(id, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: Delete: missing RLinks entry (%d under %d)", id, pid)
	}

	if rt.Prev > 0 {
		if err := w.modifyRT(rt.Prev, pid, func(prt *RTriple) { prt.Next = rt.Next }); err != nil {
			return err
		}
	} else if rt.Next > 0 {
		if err := w.setFirstChild(pid, rt.Next); err != nil {
			return err
		}
	}
	if rt.Next > 0 {
		if err := w.modifyRT(rt.Next, pid, func(nrt *RTriple) { nrt.Prev = rt.Prev }); err != nil {
			return err
		}
	}

	return w.deleteHelper(pid, id)
}

// deleteHelper removes the (id, pid) RLinks entry and, iff id has no
// parentage left, destroys id's own data and cascades into its
// children. Children are removed by repeatedly draining the head of
// id's sibling list rather than recursing while iterating it, which
// avoids re-reading a sibling list head that mutates underneath the
// same loop that is consuming it.
func (w *Writer) deleteHelper(pid, id uint64) error {
	rt, ok, err := w.rtriple(id, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: deleteHelper: missing RLinks entry (%d under %d)", id, pid)
	}
	if err := w.delRT(id, rt); err != nil {
		return err
	}

	live, err := w.hasAnyRLinks(id)
	if err != nil {
		return err
	}
	if live {
		return nil
	}

	if err := w.names.Delete(encodeU64(id)); err != nil {
		return err
	}
	if err := w.dueDates.Delete(encodeU64(id)); err != nil {
		return err
	}
	if err := w.deleteIDSessions(id); err != nil {
		return err
	}

	for {
		child, err := w.firstChild(id)
		if err != nil {
			return err
		}
		if child == 0 {
			break
		}
		if err := w.Delete(id, child); err != nil {
			return err
		}
	}
	return nil
}

// MoveUp swaps id with its immediate predecessor under pid. No-op if
// id is already the head.
func (w *Writer) MoveUp(pid, id uint64) error {
	rt, ok, err := w.rtriple(id, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: MoveUp: missing RLinks entry (%d under %d)", id, pid)
	}
	if rt.Prev == 0 {
		return nil
	}
	prt, ok, err := w.rtriple(rt.Prev, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: MoveUp: missing RLinks entry (%d under %d)", rt.Prev, pid)
	}

	if err := w.modifyRT(id, pid, func(crt *RTriple) {
		crt.Next = rt.Prev
		crt.Prev = prt.Prev
	}); err != nil {
		return err
	}
	if rt.Next > 0 {
		if err := w.modifyRT(rt.Next, pid, func(nrt *RTriple) { nrt.Prev = rt.Prev }); err != nil {
			return err
		}
	}
	if err := w.modifyRT(rt.Prev, pid, func(prt2 *RTriple) {
		prt2.Next = rt.Next
		prt2.Prev = id
	}); err != nil {
		return err
	}
	if prt.Prev > 0 {
		if err := w.modifyRT(prt.Prev, pid, func(pprt *RTriple) { pprt.Next = id }); err != nil {
			return err
		}
	} else if err := w.setFirstChild(pid, id); err != nil {
		return err
	}
	return nil
}

// MoveDown swaps id with its immediate successor under pid, symmetric
// to MoveUp. No-op if id is already the tail.
func (w *Writer) MoveDown(pid, id uint64) error {
	rt, ok, err := w.rtriple(id, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: MoveDown: missing RLinks entry (%d under %d)", id, pid)
	}
	if rt.Next == 0 {
		return nil
	}
	nrt, ok, err := w.rtriple(rt.Next, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: MoveDown: missing RLinks entry (%d under %d)", rt.Next, pid)
	}

	if err := w.modifyRT(id, pid, func(crt *RTriple) {
		crt.Prev = rt.Next
		crt.Next = nrt.Next
	}); err != nil {
		return err
	}
	if rt.Prev > 0 {
		if err := w.modifyRT(rt.Prev, pid, func(prt *RTriple) { prt.Next = rt.Next }); err != nil {
			return err
		}
	} else if err := w.setFirstChild(pid, rt.Next); err != nil {
		return err
	}
	if err := w.modifyRT(rt.Next, pid, func(nrt2 *RTriple) {
		nrt2.Prev = rt.Prev
		nrt2.Next = id
	}); err != nil {
		return err
	}
	if nrt.Next > 0 {
		if err := w.modifyRT(nrt.Next, pid, func(nnrt *RTriple) { nnrt.Prev = id }); err != nil {
			return err
		}
	}
	return nil
}

// Share adds src as a new, additional child of dest. It refuses
// (returns false, nil, no changes made) when dest is src or is
// reachable from src — which would close a cycle — or src is already
// a direct child of dest.
func (w *Writer) Share(src, dest uint64) (bool, error) {
	cycle, err := w.isDescendantOf(dest, src)
	if err != nil {
		return false, err
	}
	if cycle {
		return false, nil
	}
	if _, already, err := w.rtriple(src, dest); err != nil {
		return false, err
	} else if already {
		return false, nil
	}

	next, err := w.firstChild(dest)
	if err != nil {
		return false, err
	}
	if err := w.setFirstChild(dest, src); err != nil {
		return false, err
	}
	if err := w.putRT(src, RTriple{Pid: dest, Next: next, Prev: 0}); err != nil {
		return false, err
	}
	if next > 0 {
		if err := w.modifyRT(next, dest, func(rt *RTriple) { rt.Prev = src }); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Cut re-parents src from srcPid to dest atomically: Share followed by
// removing the old parentage. If Share refuses, Cut makes no changes
// and returns false. Unlike Delete, this never cascades, because src
// retains its new parentage under dest throughout.
func (w *Writer) Cut(srcPid, src, dest uint64) (bool, error) {
	ok, err := w.Share(src, dest)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	wasHead, err := w.delLinksIfEqual(srcPid, src)
	if err != nil {
		return false, err
	}
	rt, found, err := w.rtriple(src, srcPid)
	if err != nil {
		return false, err
	}
	if !found {
		return false, corruptedf("grus: Cut: missing RLinks entry (%d under %d)", src, srcPid)
	}
	if wasHead {
		if err := w.setFirstChild(srcPid, rt.Next); err != nil {
			return false, err
		}
	}
	if rt.Prev > 0 {
		if err := w.modifyRT(rt.Prev, srcPid, func(prt *RTriple) { prt.Next = rt.Next }); err != nil {
			return false, err
		}
	}
	if rt.Next > 0 {
		if err := w.modifyRT(rt.Next, srcPid, func(nrt *RTriple) { nrt.Prev = rt.Prev }); err != nil {
			return false, err
		}
	}
	if err := w.delRT(src, rt); err != nil {
		return false, err
	}
	return true, nil
}

// isDescendantOf reports whether subj == pred or subj is reachable via
// child-edges from pred. Relies on the store's acyclicity invariant to
// terminate; a corrupt store with a cycle could loop forever here.
func (w *Writer) isDescendantOf(subj, pred uint64) (bool, error) {
	if subj == pred {
		return true, nil
	}
	it, err := newChildIDs(w, pred)
	if err != nil {
		return false, err
	}
	for {
		child, ok, err := it.next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		desc, err := w.isDescendantOf(subj, child)
		if err != nil {
			return false, err
		}
		if desc {
			return true, nil
		}
	}
}

// firstChild and rtriple implement rlinksLookup so Writer can drive
// childIDs for isDescendantOf.
func (w *Writer) firstChild(pid uint64) (uint64, error) {
	v, err := w.links.Get(encodeU64(pid))
	if err != nil || v == nil {
		return 0, err
	}
	return decodeU64(v), nil
}

func (w *Writer) rtriple(childID, pid uint64) (RTriple, bool, error) {
	c, err := w.rlinks.Cursor()
	if err != nil {
		return RTriple{}, false, err
	}
	defer c.Close()
	k, _ := c.Seek(rlinksSeekKey(childID, pid))
	if k == nil {
		return RTriple{}, false, nil
	}
	eid, rt := decodeRLinksKey(k)
	if eid != childID || rt.Pid != pid {
		return RTriple{}, false, nil
	}
	return rt, true, nil
}

// hasAnyRLinks reports whether id has any remaining parentage, under
// any parent at all — the liveness check Delete's cascade depends on.
func (w *Writer) hasAnyRLinks(id uint64) (bool, error) {
	c, err := w.rlinks.Cursor()
	if err != nil {
		return false, err
	}
	defer c.Close()
	k, _ := c.Seek(rlinksSeekKey(id, 0))
	if k == nil {
		return false, nil
	}
	eid, _ := decodeRLinksKey(k)
	return eid == id, nil
}

// setFirstChild replaces Links[pid] via delete-then-put.
func (w *Writer) setFirstChild(pid, id uint64) error {
	if err := w.links.Delete(encodeU64(pid)); err != nil {
		return err
	}
	return w.links.Put(encodeU64(pid), encodeU64(id))
}

// delLinksIfEqual deletes Links[pid] iff it currently points at id,
// reporting whether it did (whether id was pid's head).
func (w *Writer) delLinksIfEqual(pid, id uint64) (bool, error) {
	cur, err := w.firstChild(pid)
	if err != nil {
		return false, err
	}
	if cur != id {
		return false, nil
	}
	return true, w.links.Delete(encodeU64(pid))
}

func (w *Writer) putRT(childID uint64, rt RTriple) error {
	return w.rlinks.Put(rlinksKey(childID, rt), emptyVal)
}

func (w *Writer) delRT(childID uint64, rt RTriple) error {
	return w.rlinks.Delete(rlinksKey(childID, rt))
}

// modifyRT atomically replaces the RLinks entry (id, {pid, ...}) with
// the result of applying f. Because RLinks is ordered by the full
// triple, this is a delete of the old record followed by an insert of
// the modified one.
func (w *Writer) modifyRT(id, pid uint64, f func(*RTriple)) error {
	rt, ok, err := w.rtriple(id, pid)
	if err != nil {
		return err
	}
	if !ok {
		return corruptedf("grus: modifyRT: missing RLinks entry (%d under %d)", id, pid)
	}
	if err := w.delRT(id, rt); err != nil {
		return err
	}
	f(&rt)
	return w.putRT(id, rt)
}

// deleteIDSessions drains every Sessions/RSessions entry attached to id.
func (w *Writer) deleteIDSessions(id uint64) error {
	for {
		s, ok, err := w.peekFirstSession(id)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := w.DeleteSession(id, s); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) peekFirstSession(id uint64) (Session, bool, error) {
	c, err := w.sessions.Cursor()
	if err != nil {
		return Session{}, false, err
	}
	defer c.Close()
	k, _ := c.Seek(encodeU64(id))
	if k == nil {
		return Session{}, false, nil
	}
	eid, s := decodeSessionsKey(k)
	if eid != id {
		return Session{}, false, nil
	}
	return s, true, nil
}
