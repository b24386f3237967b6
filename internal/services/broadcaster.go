package services

// Push message types sent over the websocket hub.
const (
	MsgCrashTick    = "crash_tick"
	MsgCrashEnd     = "crash_end"
	MsgGameSettled  = "game_settled"
	MsgLobbyUpdate  = "lobby_update"
	MsgLobbyClosed  = "lobby_closed"
	MsgSeedRotated  = "seed_rotated"
	MsgSeedRevealed = "seed_revealed"
	MsgBalance      = "balance"
)

// Broadcaster pushes events to connected players. Implementations must not
// block: the engine calls them while holding game locks.
type Broadcaster interface {
	SendToUser(userID int64, msgType, gameID string, data any)
	BroadcastAll(msgType string, data any)
}

type noopBroadcaster struct{}

func (noopBroadcaster) SendToUser(int64, string, string, any) {}
func (noopBroadcaster) BroadcastAll(string, any)              {}
