package lobby

import "time"

// ConnID is an opaque connection identifier minted by the transport at
// accept time. Player identity is keyed on it rather than on the transport
// handle itself.
type ConnID string

// Conn is the transport surface the coordinator needs: fire-and-forget
// sends and a forcible close. Implementations must be safe for use from
// the coordinator goroutine while their pumps run elsewhere.
type Conn interface {
	// ID returns the opaque connection identifier.
	ID() ConnID
	// Send enqueues one outbound text frame. It must not block; a full
	// buffer or closed connection returns an error.
	Send(data []byte) error
	// Close tears down the connection. The transport delivers the
	// resulting close event asynchronously.
	Close() error
}

// Player is the per-connection session state. One Player exists per live
// connection; it is created on connection-open and destroyed on
// connection-close. A Player occupies at most one room at a time.
//
// All fields are owned by the coordinator loop.
type Player struct {
	// ID is the cyclic numeric player identifier (1..999).
	ID int
	// Name is the display name, defaulting to "Anon_<id>".
	Name string
	// Version is the client-declared protocol version, set on the first
	// room, matchmaking, or name message.
	Version string
	// DeckID is the player's selected deck, empty until set.
	DeckID string
	// Room is the room the player currently occupies, nil when in the Lobby.
	Room GameRoom
	// Conn is the owning transport connection.
	Conn Conn

	idle *time.Timer
}

// GameRoom is the collaborator contract for a single game room. The
// coordinator treats rooms as opaque beyond this surface: it never inspects
// game state, only membership, version, and liveness.
//
// Implementations are called exclusively from the coordinator loop and
// need no internal locking.
type GameRoom interface {
	// Name returns the qualified room name ("Match_<n>" or "custom_<id>").
	Name() string
	// Version returns the protocol version fixed at creation.
	Version() string
	// Join seats the player, reporting false when no seat is available.
	Join(p *Player) bool
	// Observe attaches the player as an observer.
	Observe(p *Player) bool
	// PlayerQuit removes the player, distinguishing a voluntary leave from
	// a disconnect.
	PlayerQuit(p *Player, disconnect bool)
	// HandleGameMessage forwards an opaque client frame into the room.
	HandleGameMessage(p *Player, payload []byte)
	// Players returns the seated players in seat order, length <= 2.
	Players() []*Player
	// Started reports whether the game has begun.
	Started() bool
	// GameOver reports whether the room is finished and should be torn down.
	GameOver() bool
	// ObserverCount returns the number of attached observers.
	ObserverCount() int
	// PlayerName returns the display name of the player in the given seat,
	// or "" when the seat is empty.
	PlayerName(seat int) string
	// PlayerDeck returns the deck of the player in the given seat, or ""
	// when the seat is empty.
	PlayerDeck(seat int) string
}

// RoomFactory constructs a GameRoom at the given version with the given
// qualified name.
type RoomFactory func(version, name string) GameRoom
