package host

// errorTable maps error-context handles to host errors for one store.
// Handle 0 is never issued.
type errorTable struct {
	next    uint32
	entries map[uint32]error
}

func (t *errorTable) insert(err error) uint32 {
	if t.entries == nil {
		t.entries = make(map[uint32]error)
	}
	t.next++
	t.entries[t.next] = err
	return t.next
}

func (t *errorTable) lookup(h uint32) (error, bool) {
	err, ok := t.entries[h]
	return err, ok
}

func (t *errorTable) len() int { return len(t.entries) }
