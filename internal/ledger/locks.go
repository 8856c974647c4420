package ledger

import "sync"

// lockTable hands out one mutex per account id so every read-modify-write
// against a balance is serialized in-process. Pair locks are always taken
// in ascending id order; two settlements moving money in opposite
// directions between the same accounts therefore cannot deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// lock acquires the account's mutex and returns its release func.
func (t *lockTable) lock(id string) func() {
	l := t.get(id)
	l.Lock()
	return l.Unlock
}

// lockPair acquires both mutexes in ascending id order.
func (t *lockTable) lockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	first := t.get(a)
	second := t.get(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
