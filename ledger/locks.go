package ledger

import "sync"

// accountLocks hands out one mutex per account. Entries are dropped once
// nobody holds or waits on them.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[string]*accountLock)}
}

// lock blocks until owner's mutex is held and returns its release func.
func (l *accountLocks) lock(owner string) func() {
	l.mu.Lock()
	al, ok := l.m[owner]
	if !ok {
		al = &accountLock{}
		l.m[owner] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()

	return func() {
		al.mu.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.m, owner)
		}
		l.mu.Unlock()
	}
}

func (l *accountLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
