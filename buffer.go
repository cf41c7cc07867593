package txevents

// PendingEvent is one buffered event awaiting the outcome of its enclosing
// transaction. Sequence is assigned at enqueue time and preserves FIFO
// order across nesting levels on flush.
type PendingEvent struct {
	Event    Event
	Level    int
	Sequence uint64
}

// buffer holds the events raised inside an open transaction, each tagged
// with the nesting level that raised it. All mutations run synchronously on
// the dispatcher call path; see Dispatcher for the confinement contract.
type buffer struct {
	entries  []PendingEvent
	sequence uint64
	max      int
}

func newBuffer(maxPending int) *buffer {
	return &buffer{max: maxPending}
}

// full reports whether the optional capacity limit has been reached.
func (buf *buffer) full() bool {
	return buf.max > 0 && len(buf.entries) >= buf.max
}

// enqueue appends the event tagged with level and the next sequence number.
func (buf *buffer) enqueue(event Event, level int) PendingEvent {
	buf.sequence++

	entry := PendingEvent{Event: event, Level: level, Sequence: buf.sequence}
	buf.entries = append(buf.entries, entry)

	return entry
}

// flushAll drains the buffer, returning every entry in sequence order.
func (buf *buffer) flushAll() []PendingEvent {
	if len(buf.entries) == 0 {
		return nil
	}

	drained := buf.entries
	buf.entries = nil

	return drained
}

// discardFrom removes entries tagged at or above level and returns the
// number removed.
func (buf *buffer) discardFrom(level int) int {
	if len(buf.entries) == 0 {
		return 0
	}

	kept := buf.entries[:0]

	for _, entry := range buf.entries {
		if entry.Level >= level {
			continue
		}

		kept = append(kept, entry)
	}

	discarded := len(buf.entries) - len(kept)

	// Clear the tail so discarded payloads are not retained.
	for i := len(kept); i < len(buf.entries); i++ {
		buf.entries[i] = PendingEvent{}
	}

	buf.entries = kept

	return discarded
}

// demote re-tags entries at level from down to level to, returning the
// number re-tagged. Sequence numbers are untouched, so flush order is
// unaffected.
func (buf *buffer) demote(from, to int) int {
	demoted := 0

	for i := range buf.entries {
		if buf.entries[i].Level == from {
			buf.entries[i].Level = to
			demoted++
		}
	}

	return demoted
}

// depth returns the number of buffered entries.
func (buf *buffer) depth() int {
	return len(buf.entries)
}

// snapshot returns a copy of the buffered entries in sequence order.
func (buf *buffer) snapshot() []PendingEvent {
	if len(buf.entries) == 0 {
		return nil
	}

	entries := make([]PendingEvent, len(buf.entries))
	copy(entries, buf.entries)

	return entries
}
