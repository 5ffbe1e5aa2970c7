package matching

// txn is the undo log of one operation. Every book or order mutation
// registers its inverse; rollback replays them newest first so each
// inverse sees exactly the state its forward step produced.
type txn struct {
	undo []func()
}

func (t *txn) onUndo(fn func()) { t.undo = append(t.undo, fn) }

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
