package grus

import (
	"time"
	"unicode/utf8"

	"github.com/metent/grus-lib/kv"
	"github.com/metent/grus-lib/kv/boltkv"
)

// Reader holds a snapshot transaction plus the six index buckets
// cached at construction. All accessors are non-mutating and fallible
// only on I/O or corruption.
type Reader struct {
	tx        kv.Tx
	links     kv.Bucket
	rlinks    kv.Bucket
	names     kv.Bucket
	dueDates  kv.Bucket
	sessions  kv.Bucket
	rsessions kv.Bucket
}

func newReader(tx kv.Tx) (*Reader, error) {
	r := &Reader{tx: tx}
	var err error
	if r.links, err = tx.Bucket(boltkv.BucketName(boltkv.SlotLinks)); err != nil {
		return nil, err
	}
	if r.rlinks, err = tx.Bucket(boltkv.BucketName(boltkv.SlotRLinks)); err != nil {
		return nil, err
	}
	if r.names, err = tx.Bucket(boltkv.BucketName(boltkv.SlotNames)); err != nil {
		return nil, err
	}
	if r.dueDates, err = tx.Bucket(boltkv.BucketName(boltkv.SlotDueDates)); err != nil {
		return nil, err
	}
	if r.sessions, err = tx.Bucket(boltkv.BucketName(boltkv.SlotSessions)); err != nil {
		return nil, err
	}
	if r.rsessions, err = tx.Bucket(boltkv.BucketName(boltkv.SlotRSessions)); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the snapshot. It never fails; it is the analogue of
// the original's implicit drop.
func (r *Reader) Close() { r.tx.Rollback() }

// Name returns the name of id, or ok=false if no entry with exactly
// that key exists.
func (r *Reader) Name(id uint64) (name string, ok bool, err error) {
	v, err := r.names.Get(encodeU64(id))
	if err != nil || v == nil {
		return "", false, err
	}
	if !utf8.Valid(v) {
		return "", false, corruptedf("grus: name of %d is not valid UTF-8", id)
	}
	return string(v), true, nil
}

// DueDate returns the due date of id, or ok=false if unset.
func (r *Reader) DueDate(id uint64) (at time.Time, ok bool, err error) {
	v, err := r.dueDates.Get(encodeU64(id))
	if err != nil || v == nil {
		return time.Time{}, false, err
	}
	return decodeDueDate(v).At, true, nil
}

// FirstSession returns the least Session attached to id, by (start, end).
func (r *Reader) FirstSession(id uint64) (s Session, ok bool, err error) {
	c, err := r.sessions.Cursor()
	if err != nil {
		return Session{}, false, err
	}
	defer c.Close()
	k, _ := c.Seek(encodeU64(id))
	if k == nil {
		return Session{}, false, nil
	}
	eid, session := decodeSessionsKey(k)
	if eid != id {
		return Session{}, false, nil
	}
	return session, true, nil
}

// firstChild and rtriple implement rlinksLookup for Reader.ChildIDs.
func (r *Reader) firstChild(pid uint64) (uint64, error) {
	v, err := r.links.Get(encodeU64(pid))
	if err != nil || v == nil {
		return 0, err
	}
	return decodeU64(v), nil
}

func (r *Reader) rtriple(childID, pid uint64) (RTriple, bool, error) {
	c, err := r.rlinks.Cursor()
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

// ChildIDs returns a forward-only iterator over pid's sibling list, in order.
func (r *Reader) ChildIDs(pid uint64) (*ChildIDIter, error) {
	c, err := newChildIDs(r, pid)
	if err != nil {
		return nil, err
	}
	return &ChildIDIter{c: c}, nil
}

// SessionEntry is one (id, Session) pair from a Sessions scan.
type SessionEntry struct {
	ID      uint64
	Session Session
}

// SessionIter is the lazy, forward-only, non-restartable sequence
// returned by Reader.Sessions.
type SessionIter struct {
	c           kv.Cursor
	id          uint64
	done        bool
	startedFlag bool
	err         error
}

// Sessions returns every session attached to id, ordered by (start,
// end), halting as soon as a scanned key's id exceeds id.
func (r *Reader) Sessions(id uint64) (*SessionIter, error) {
	c, err := r.sessions.Cursor()
	if err != nil {
		return nil, err
	}
	return &SessionIter{c: c, id: id}, nil
}

func (it *SessionIter) Next() (e SessionEntry, ok bool) {
	if it.done || it.err != nil {
		return SessionEntry{}, false
	}
	var k, v []byte
	if it.started() {
		k, v = it.c.Next()
	} else {
		k, v = it.c.Seek(encodeU64(it.id))
	}
	_ = v
	if k == nil {
		it.done = true
		return SessionEntry{}, false
	}
	eid, session := decodeSessionsKey(k)
	if eid != it.id {
		it.done = true
		return SessionEntry{}, false
	}
	it.markStarted()
	return SessionEntry{ID: eid, Session: session}, true
}

// started/markStarted distinguish "first call, must Seek" from
// "subsequent call, must Next" via the startedFlag field.
func (it *SessionIter) started() bool { return it.startedFlag }
func (it *SessionIter) markStarted()  { it.startedFlag = true }

func (it *SessionIter) Err() error { return it.err }

// NameEntry is one (id, name) pair from a full Names scan.
type NameEntry struct {
	ID   uint64
	Name string
}

// NameIter is the forward-only sequence returned by Reader.AllNames.
type NameIter struct {
	c       kv.Cursor
	started bool
	err     error
}

// AllNames returns every (id, name) pair in ascending id order.
func (r *Reader) AllNames() (*NameIter, error) {
	c, err := r.names.Cursor()
	if err != nil {
		return nil, err
	}
	return &NameIter{c: c}, nil
}

func (it *NameIter) Next() (e NameEntry, ok bool) {
	if it.err != nil {
		return NameEntry{}, false
	}
	var k, v []byte
	if !it.started {
		it.started = true
		k, v = it.c.First()
	} else {
		k, v = it.c.Next()
	}
	if k == nil {
		return NameEntry{}, false
	}
	if !utf8.Valid(v) {
		it.err = corruptedf("grus: name of %d is not valid UTF-8", decodeU64(k))
		return NameEntry{}, false
	}
	return NameEntry{ID: decodeU64(k), Name: string(v)}, true
}

func (it *NameIter) Err() error { return it.err }

// RSessionEntry is one (Session, id) pair from a full RSessions scan.
type RSessionEntry struct {
	Session Session
	ID      uint64
}

// RSessionIter is the forward-only sequence returned by Reader.AllSessions.
type RSessionIter struct {
	c       kv.Cursor
	started bool
}

// AllSessions returns every (Session, id) pair in chronological order.
func (r *Reader) AllSessions() (*RSessionIter, error) {
	c, err := r.rsessions.Cursor()
	if err != nil {
		return nil, err
	}
	return &RSessionIter{c: c}, nil
}

func (it *RSessionIter) Next() (e RSessionEntry, ok bool) {
	var k, v []byte
	if !it.started {
		it.started = true
		k, v = it.c.First()
	} else {
		k, v = it.c.Next()
	}
	_ = v
	if k == nil {
		return RSessionEntry{}, false
	}
	s, id := decodeRSessionsKey(k)
	return RSessionEntry{Session: s, ID: id}, true
}
