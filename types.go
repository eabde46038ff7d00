package grus

import (
	"encoding/binary"
	"time"
)

// RTriple records one parentage of a child: within pid's sibling list,
// the node before this one is Prev (0 if head), the node after it is
// Next (0 if tail). Its field order, pid then next then prev, is
// chosen so that big-endian byte concatenation sorts identically to
// the (pid, next, prev) lexicographic order the RLinks index requires,
// which is what lets "find the parentage of child under pid" be a
// single range seek at (child, {pid, 0, 0}).
type RTriple struct {
	Pid  uint64
	Next uint64
	Prev uint64
}

const rtripleSize = 24

func (t RTriple) encode() []byte {
	b := make([]byte, rtripleSize)
	binary.BigEndian.PutUint64(b[0:8], t.Pid)
	binary.BigEndian.PutUint64(b[8:16], t.Next)
	binary.BigEndian.PutUint64(b[16:24], t.Prev)
	return b
}

func decodeRTriple(b []byte) RTriple {
	return RTriple{
		Pid:  binary.BigEndian.Uint64(b[0:8]),
		Next: binary.BigEndian.Uint64(b[8:16]),
		Prev: binary.BigEndian.Uint64(b[16:24]),
	}
}

// Session is a time interval attached to a node, ordered by (Start, End).
type Session struct {
	Start time.Time
	End   time.Time
}

const sessionSize = 16

func (s Session) encode() []byte {
	b := make([]byte, sessionSize)
	binary.BigEndian.PutUint64(b[0:8], orderedNanos(s.Start))
	binary.BigEndian.PutUint64(b[8:16], orderedNanos(s.End))
	return b
}

func decodeSession(b []byte) Session {
	return Session{
		Start: fromOrderedNanos(binary.BigEndian.Uint64(b[0:8])),
		End:   fromOrderedNanos(binary.BigEndian.Uint64(b[8:16])),
	}
}

// DueDate wraps the optional due timestamp of a node.
type DueDate struct {
	At time.Time
}

const dueDateSize = 8

func (d DueDate) encode() []byte {
	b := make([]byte, dueDateSize)
	binary.BigEndian.PutUint64(b, orderedNanos(d.At))
	return b
}

func decodeDueDate(b []byte) DueDate {
	return DueDate{At: fromOrderedNanos(binary.BigEndian.Uint64(b))}
}

// orderedNanos maps a time.Time to a uint64 such that byte-lexicographic
// order on the result equals chronological order, including for
// instants before the Unix epoch (negative UnixNano): flipping the sign
// bit of the two's-complement nanosecond count moves the signed range
// [-2^63, 2^63) onto the unsigned range [0, 2^64) while preserving order.
func orderedNanos(t time.Time) uint64 {
	return uint64(t.UnixNano()) ^ (1 << 63)
}

func fromOrderedNanos(u uint64) time.Time {
	return time.Unix(0, int64(u^(1<<63))).UTC()
}

func encodeU64(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// rlinksKey is the full RLinks record key: child_id followed by the
// RTriple under which it was filed. Because RLinks is ordered by the
// complete (child, pid, next, prev) tuple, any field mutation is a
// delete of the old key followed by an insert of the new one.
func rlinksKey(childID uint64, t RTriple) []byte {
	return append(encodeU64(childID), t.encode()...)
}

// rlinksSeekKey builds the range-seek prefix (child, {pid, 0, 0}),
// which seeks to the first RLinks entry for childID under pid,
// regardless of that entry's next/prev, because next and prev only
// ever increase the seek key.
func rlinksSeekKey(childID, pid uint64) []byte {
	return rlinksKey(childID, RTriple{Pid: pid})
}

func decodeRLinksKey(k []byte) (childID uint64, t RTriple) {
	return decodeU64(k[:8]), decodeRTriple(k[8:])
}

func sessionsKey(id uint64, s Session) []byte {
	return append(encodeU64(id), s.encode()...)
}

func decodeSessionsKey(k []byte) (id uint64, s Session) {
	return decodeU64(k[:8]), decodeSession(k[8:])
}

func rsessionsKey(s Session, id uint64) []byte {
	return append(s.encode(), encodeU64(id)...)
}

func decodeRSessionsKey(k []byte) (s Session, id uint64) {
	return decodeSession(k[:16]), decodeU64(k[16:])
}
