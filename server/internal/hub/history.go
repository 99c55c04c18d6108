package hub

// History is the ordered log of draw events accepted since the last clear.
// Payloads are stored verbatim and never interpreted.
//
// Every appended entry gets a sequence number. Numbers keep counting across
// clears, so a position taken with Seq stays comparable with later entries.
//
// History is not safe for concurrent use; the Hub guards it with its mutex.
type History struct {
	entries [][]byte
	// base is the sequence number of entries[0].
	base uint64
}

// NewHistory returns an empty log.
func NewHistory() *History {
	return &History{}
}

// Append adds payload to the end of the log and returns its sequence number.
// Callers must not modify payload afterwards.
func (h *History) Append(payload []byte) uint64 {
	h.entries = append(h.entries, payload)
	return h.base + uint64(len(h.entries)) - 1
}

// Clear empties the log. Snapshots taken earlier are unaffected.
func (h *History) Clear() {
	h.base += uint64(len(h.entries))
	h.entries = nil
}

// Seq returns the sequence number the next appended entry will get.
func (h *History) Seq() uint64 {
	return h.base + uint64(len(h.entries))
}

// Snapshot returns a copy of the log in append order.
func (h *History) Snapshot() [][]byte {
	out := make([][]byte, len(h.entries))
	copy(out, h.entries)
	return out
}

// Before returns a copy of the entries appended before seq, in append order.
// Entries dropped by a clear are gone even if they were appended before seq.
func (h *History) Before(seq uint64) [][]byte {
	if seq <= h.base {
		return nil
	}
	n := seq - h.base
	if n > uint64(len(h.entries)) {
		n = uint64(len(h.entries))
	}
	out := make([][]byte, n)
	copy(out, h.entries[:n])
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}
