package game

import "fmt"

// State is the lifecycle phase of a game. The ordinals are part of the
// external contract and must not be renumbered.
type State uint8

const (
	StateGuessing State = 0
	StateRevealed State = 1
	StateEnded    State = 2
)

func (s State) String() string {
	switch s {
	case StateGuessing:
		return "guessing"
	case StateRevealed:
		return "revealed"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// transition moves the state machine forward. It refuses to go backwards or
// to stay put, so a settled game can never be settled twice.
func (s *State) transition(to State) error {
	if to <= *s {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrNotRevealable, *s, to)
	}
	*s = to
	return nil
}
