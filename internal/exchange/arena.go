package exchange

// table is an append-only arena keyed by sequential 1-based ids. Ids are the
// slice index plus one and are never reused.
type table[T any] struct {
	rows  []T
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{clone: clone}
}

// nextID is the id the next insert will receive.
func (t *table[T]) nextID() uint64 { return uint64(len(t.rows)) + 1 }

// count is the number of rows, which is also the highest assigned id.
func (t *table[T]) count() uint64 { return uint64(len(t.rows)) }

func (t *table[T]) exists(id uint64) bool {
	return id >= 1 && id <= uint64(len(t.rows))
}

// get returns a copy of the row with the given id.
func (t *table[T]) get(id uint64) (T, bool) {
	if !t.exists(id) {
		var zero T
		return zero, false
	}
	return t.clone(t.rows[id-1]), true
}

// insert appends v and registers the truncation with tx.
func (t *table[T]) insert(tx *txn, v T) uint64 {
	t.rows = append(t.rows, v)
	n := len(t.rows) - 1
	tx.onUndo(func() { t.rows = t.rows[:n] })
	return uint64(n) + 1
}

// update applies fn to the row in place and registers the prior value with tx.
// The caller must have checked that id exists.
func (t *table[T]) update(tx *txn, id uint64, fn func(*T)) {
	i := id - 1
	old := t.clone(t.rows[i])
	tx.onUndo(func() { t.rows[i] = old })
	fn(&t.rows[i])
}

// all returns copies of every row in id order.
func (t *table[T]) all() []T {
	out := make([]T, len(t.rows))
	for i, r := range t.rows {
		out[i] = t.clone(r)
	}
	return out
}
