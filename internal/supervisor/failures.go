package supervisor

import "time"

// FailureRecord captures one failed attempt.
type FailureRecord struct {
	Attempt int
	Err     error
	Time    time.Time
}

// FailureRing keeps the most recent failures of the current streak.
// Capacity is fixed at construction; pushing into a full ring evicts the
// oldest record.
type FailureRing struct {
	buf   []FailureRecord
	start int
	n     int
}

// NewFailureRing creates a ring holding at most capacity records.
func NewFailureRing(capacity int) *FailureRing {
	if capacity < 1 {
		capacity = 1
	}
	return &FailureRing{buf: make([]FailureRecord, capacity)}
}

// Push appends a record, evicting the oldest one when full.
func (r *FailureRing) Push(rec FailureRecord) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = rec
		r.n++
		return
	}
	r.buf[r.start] = rec
	r.start = (r.start + 1) % len(r.buf)
}

// Records returns a copy of the retained records, oldest first.
func (r *FailureRing) Records() []FailureRecord {
	out := make([]FailureRecord, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Last returns the newest record.
func (r *FailureRing) Last() (FailureRecord, bool) {
	if r.n == 0 {
		return FailureRecord{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// Reset drops all records. Error values are released so they can be
// collected.
func (r *FailureRing) Reset() {
	clear(r.buf)
	r.start = 0
	r.n = 0
}

// Len returns the number of retained records.
func (r *FailureRing) Len() int {
	return r.n
}

// Cap returns the fixed capacity.
func (r *FailureRing) Cap() int {
	return len(r.buf)
}
