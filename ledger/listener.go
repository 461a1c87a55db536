package ledger

// Listener is told about every open and close after the account lock has
// been released. Implementations must not block for long.
type Listener interface {
	PositionOpened(p Position)
	PositionClosed(s Settlement)
}

// Listeners fans out to each non-nil listener in order.
type Listeners []Listener

func (ls Listeners) PositionOpened(p Position) {
	for _, l := range ls {
		if l != nil {
			l.PositionOpened(p)
		}
	}
}

func (ls Listeners) PositionClosed(s Settlement) {
	for _, l := range ls {
		if l != nil {
			l.PositionClosed(s)
		}
	}
}

type nopListener struct{}

func (nopListener) PositionOpened(Position)   {}
func (nopListener) PositionClosed(Settlement) {}
