package server

// Note: game events (commit_guess, reveal_answer, etc.) are defined in
// internal/game/event_types.go and are also sent as WebSocket messages

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateGame  MessageType = "create_game"
	MessageTypeGuess       MessageType = "guess"
	MessageTypeReveal      MessageType = "reveal"
	MessageTypeGetGame     MessageType = "get_game"
	MessageTypeListGames   MessageType = "list_games"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeBalance     MessageType = "balance"

	// Server to client messages
	MessageTypeChallenge    MessageType = "challenge"
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeError        MessageType = "error"
	MessageTypeGameState    MessageType = "game_state"
	MessageTypeGameList     MessageType = "game_list"
	MessageTypeBalanceInfo  MessageType = "balance_info"
	MessageTypeGameCreated  MessageType = "game_created"
	MessageTypeCommitGuess  MessageType = "commit_guess"
	MessageTypeRevealAnswer MessageType = "reveal_answer"
	MessageTypeRewardWinner MessageType = "reward_winners"
	MessageTypeGameEnded    MessageType = "game_ended"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
