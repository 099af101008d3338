package model

// TransitionType tells a subscriber how a block changed the canonical chain.
type TransitionType string

const (
	Connected    TransitionType = "connected"
	Disconnected TransitionType = "disconnected"
	Fork         TransitionType = "fork"
)

// Valid reports whether t is one of the known transition types.
func (t TransitionType) Valid() bool {
	switch t {
	case Connected, Disconnected, Fork:
		return true
	default:
		return false
	}
}

// Transition is a single event produced while following the chain.
type Transition struct {
	Type  TransitionType
	Block Block
	// Tip is the canonical tip observed when the transition was produced.
	Tip ChainHead
}
