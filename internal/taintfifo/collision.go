package taintfifo

import (
	"encoding/csv"
	"strconv"
)

// CollisionRecord is one taint-overlap event: two non-clean fragments
// occupying the same position during a Combine.
type CollisionRecord struct {
	Left    ColorID
	Right   ColorID
	Overlap uint64
	Tag     string // txid_hex of the transaction where the collision occurred
	Offset  uint64 // cumulative value already resolved before this overlap
}

// CollisionLog streams collision rows to taint_overlap.csv as they occur,
// rather than buffering them: the writer is held open for the life of the
// replay, mirroring the original's LineWriter passed into combine_taints.
type CollisionLog struct {
	w       *csv.Writer
	count   uint64
	forward func(CollisionRecord)
}

// NewCollisionLog wraps w. A nil writer is valid and discards records,
// useful for tests that only care about the returned collision count.
func NewCollisionLog(w *csv.Writer) *CollisionLog {
	return &CollisionLog{w: w}
}

// SetForward installs fn to be called, in addition to the CSV row, for
// every collision recorded — the seam the optional Postgres sink uses to
// mirror collisions without the CSV writer knowing about it.
func (c *CollisionLog) SetForward(fn func(CollisionRecord)) { c.forward = fn }

// Record appends one collision row and flushes nothing (the exporter
// flushes the overlap writer once, in Finalize).
func (c *CollisionLog) Record(r CollisionRecord) error {
	c.count++
	if c.forward != nil {
		c.forward(r)
	}
	if c.w == nil {
		return nil
	}
	return c.w.Write([]string{
		strconv.FormatUint(uint64(r.Left), 10),
		strconv.FormatUint(uint64(r.Right), 10),
		strconv.FormatUint(r.Overlap, 10),
		r.Tag,
		strconv.FormatUint(r.Offset, 10),
	})
}

// Count returns the number of collisions recorded so far.
func (c *CollisionLog) Count() uint64 { return c.count }
