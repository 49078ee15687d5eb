package taintfifo

import "container/list"

// TaintQueue is an ordered sequence of TaintFragments, oldest-consumed-first.
// It is backed by container/list rather than a slice so that Extract and
// Combine can split and re-push fragments at the front in O(1), the natural
// Go analogue of a VecDeque-of-chunks.
type TaintQueue struct {
	l *list.List
}

// NewTaintQueue returns an empty queue.
func NewTaintQueue() *TaintQueue {
	return &TaintQueue{l: list.New()}
}

// Empty reports whether the queue holds no fragments.
func (q *TaintQueue) Empty() bool { return q.l.Len() == 0 }

// Len returns the fragment count (not the total value).
func (q *TaintQueue) Len() int { return q.l.Len() }

// PushBack appends a fragment. Zero-value fragments are dropped.
func (q *TaintQueue) PushBack(f TaintFragment) {
	if f.Value == 0 {
		return
	}
	q.l.PushBack(f)
}

// PushFront prepends a fragment. Zero-value fragments are dropped.
func (q *TaintQueue) PushFront(f TaintFragment) {
	if f.Value == 0 {
		return
	}
	q.l.PushFront(f)
}

// PopFront removes and returns the oldest fragment.
func (q *TaintQueue) PopFront() (TaintFragment, bool) {
	e := q.l.Front()
	if e == nil {
		return TaintFragment{}, false
	}
	q.l.Remove(e)
	return e.Value.(TaintFragment), true
}

// Each visits every fragment in order without mutating the queue.
func (q *TaintQueue) Each(visit func(TaintFragment)) {
	for e := q.l.Front(); e != nil; e = e.Next() {
		visit(e.Value.(TaintFragment))
	}
}

// Fragments returns a snapshot slice of the queue's fragments, in order.
func (q *TaintQueue) Fragments() []TaintFragment {
	frags := make([]TaintFragment, 0, q.l.Len())
	q.Each(func(f TaintFragment) { frags = append(frags, f) })
	return frags
}

// Sum returns the total value across all fragments.
func (q *TaintQueue) Sum() uint64 {
	var sum uint64
	q.Each(func(f TaintFragment) { sum += f.Value })
	return sum
}

// NonCleanSum returns the total value held by non-clean fragments. A nil
// queue (entirely clean UTXO) sums to zero.
func NonCleanSum(q *TaintQueue) uint64 {
	if q == nil {
		return 0
	}
	var sum uint64
	q.Each(func(f TaintFragment) {
		if f.Color != CleanColor {
			sum += f.Value
		}
	})
	return sum
}

// appendCoalesced appends f to q, merging it into the current back fragment
// when the colors match so adjacent same-color runs never fragment further.
func appendCoalesced(q *TaintQueue, f TaintFragment) {
	if f.Value == 0 {
		return
	}
	if back := q.l.Back(); back != nil {
		bf := back.Value.(TaintFragment)
		if bf.Color == f.Color {
			bf.Value += f.Value
			back.Value = bf
			return
		}
	}
	q.l.PushBack(f)
}

// Extract removes exactly n value's worth of fragments from the front of
// src and returns them as a new queue, preserving order. If src runs dry
// before n is satisfied, the shortfall is padded with a clean fragment —
// src is assumed to back a real UTXO whose untracked prefix is untainted.
func Extract(src *TaintQueue, n uint64) *TaintQueue {
	result := NewTaintQueue()
	remaining := n
	for remaining > 0 {
		frag, ok := src.PopFront()
		if !ok {
			result.PushBack(TaintFragment{Color: CleanColor, Value: remaining})
			remaining = 0
			break
		}
		if remaining >= frag.Value {
			remaining -= frag.Value
			result.PushBack(frag)
			continue
		}
		src.PushFront(TaintFragment{Color: frag.Color, Value: frag.Value - remaining})
		result.PushBack(TaintFragment{Color: frag.Color, Value: remaining})
		remaining = 0
	}
	return result
}

// Combine overlays right onto left position-by-position and leaves the
// merged result in left (right is drained to empty). Where the two
// fragment streams disagree on color at a given offset, left wins unless
// left is clean, in which case right's color wins; a collision is counted
// (and logged, with the given tag) whenever both sides are simultaneously
// non-clean at an overlapping position. Each position is counted once, so
// for equal-sum inputs sum(left-after) == sum(left-before); if one side is
// longer, its unmatched tail is appended unchanged.
func Combine(left, right *TaintQueue, log *CollisionLog, tag string) (uint32, error) {
	merged := NewTaintQueue()
	var collisions uint32
	var offset uint64

	for !left.Empty() && !right.Empty() {
		l, _ := left.PopFront()
		r, _ := right.PopFront()

		if l.Value > r.Value {
			// l straddles r: split l at r's boundary and retry with the
			// front piece sized to match r exactly.
			left.PushFront(TaintFragment{Color: l.Color, Value: l.Value - r.Value})
			left.PushFront(TaintFragment{Color: l.Color, Value: r.Value})
			right.PushFront(r)
			continue
		}

		// l.Value <= r.Value: l is consumed whole against the front of r.
		overlap := l.Value
		if l.Color != CleanColor && r.Color != CleanColor {
			collisions++
			if log != nil {
				if err := log.Record(CollisionRecord{
					Left:    l.Color,
					Right:   r.Color,
					Overlap: overlap,
					Tag:     tag,
					Offset:  offset,
				}); err != nil {
					return collisions, err
				}
			}
		}

		color := l.Color
		if color == CleanColor {
			color = r.Color
		}
		appendCoalesced(merged, TaintFragment{Color: color, Value: overlap})
		offset += overlap

		if rest := r.Value - overlap; rest > 0 {
			right.PushFront(TaintFragment{Color: r.Color, Value: rest})
		}
	}

	for !right.Empty() {
		f, _ := right.PopFront()
		merged.PushBack(f)
	}
	for !left.Empty() {
		f, _ := left.PopFront()
		merged.PushBack(f)
	}

	*left = *merged
	return collisions, nil
}

// Compact coalesces adjacent same-color fragments in place and drops
// zero-value fragments. If the result is a single clean fragment, it is
// dropped entirely, leaving q empty — callers store that as a nil
// *TaintQueue (AddressInfo.Tainted == nil), the canonical "entirely clean"
// representation. Compact is idempotent.
func Compact(q *TaintQueue) {
	merged := NewTaintQueue()
	for !q.Empty() {
		f, _ := q.PopFront()
		appendCoalesced(merged, f)
	}
	if merged.Len() == 1 {
		only, _ := merged.PopFront()
		if only.Color != CleanColor {
			merged.PushBack(only)
		}
	}
	*q = *merged
}
