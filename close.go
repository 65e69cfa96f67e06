package tablo

// Close releases the table's storage handles. An in-flight build is
// cancelled. Close is idempotent; all operations after Close fail with
// ErrClosed.
func (t *Table) Close() error {
	if t == nil {
		return nil
	}
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.coord.Cancel()

	return t.src.Close()
}
