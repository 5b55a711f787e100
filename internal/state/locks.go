package state

import "sync"

// Locks serializes work per user in arrival order. Each Enqueue takes a
// place in the user's queue; the holder of a Ticket runs once every earlier
// ticket for that user has been released. Different users never wait on
// each other.
type Locks struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

func NewLocks() *Locks {
	return &Locks{tails: make(map[int64]chan struct{})}
}

// Ticket is one place in a user's queue. Release must follow Wait.
type Ticket struct {
	locks  *Locks
	userID int64
	prev   <-chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Enqueue reserves the next place in userID's queue without blocking.
// Call it in the order events arrive.
func (l *Locks) Enqueue(userID int64) *Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &Ticket{locks: l, userID: userID, prev: l.tails[userID], done: make(chan struct{})}
	l.tails[userID] = t.done
	return t
}

// Wait blocks until every earlier ticket of the user was released.
func (t *Ticket) Wait() {
	if t.prev != nil {
		<-t.prev
	}
}

// Release hands the turn to the next ticket. Extra calls are no-ops.
func (t *Ticket) Release() {
	t.once.Do(func() {
		close(t.done)

		l := t.locks
		l.mu.Lock()
		if l.tails[t.userID] == t.done {
			delete(l.tails, t.userID)
		}
		l.mu.Unlock()
	})
}

// Lock blocks until the caller owns userID's turn and returns the release func.
func (l *Locks) Lock(userID int64) (unlock func()) {
	t := l.Enqueue(userID)
	t.Wait()
	return t.Release
}

// Len returns the number of users with a held or queued ticket.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tails)
}
