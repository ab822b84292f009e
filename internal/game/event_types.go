package game

// EventType represents a game event type with type safety
type EventType string

// EventType constants for game domain events
const (
	EventTypeGameCreated   EventType = "game_created"
	EventTypeCommitGuess   EventType = "commit_guess"
	EventTypeRevealAnswer  EventType = "reveal_answer"
	EventTypeRewardWinners EventType = "reward_winners"
	EventTypeGameEnded     EventType = "game_ended"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}
