// Package game provides the card-table room implementation behind the
// lobby coordinator's GameRoom contract: two ordered seats, an unbounded
// observer set, and verbatim relay of opaque game frames.
package game

import "github.com/deckmatch/lobbyd/internal/lobby"

// maxSeats is the number of active players a table holds.
const maxSeats = 2

// Room is a single two-seat card table. The game starts the moment the
// second seat fills and ends when a seated player departs: mid-game the
// departure is a forfeit, pre-game an emptied table is simply torn down.
//
// Rooms are driven entirely from the coordinator loop and need no
// internal locking.
type Room struct {
	name      string
	version   string
	seats     []*lobby.Player
	observers map[*lobby.Player]struct{}
	started   bool
	over      bool
}

var _ lobby.GameRoom = (*Room)(nil)

// New creates an empty Room with the given protocol version and qualified
// name. The version is immutable for the room's lifetime.
func New(version, name string) *Room {
	return &Room{
		name:      name,
		version:   version,
		observers: make(map[*lobby.Player]struct{}),
	}
}

// Name returns the qualified room name.
func (r *Room) Name() string { return r.name }

// Version returns the protocol version fixed at creation.
func (r *Room) Version() string { return r.version }

// Join seats the player in the first free seat.
//
// Postcondition: Returns false when the room is finished, the game has
// started, or both seats are taken; otherwise the player is seated and the
// game starts if the table is now full.
func (r *Room) Join(p *lobby.Player) bool {
	if r.over || r.started || len(r.seats) >= maxSeats {
		return false
	}
	r.seats = append(r.seats, p)
	if len(r.seats) == maxSeats {
		r.started = true
	}
	return true
}

// Observe attaches the player as an observer. Observers never block seats
// and there is no observer limit.
//
// Postcondition: Returns false only when the room is already finished.
func (r *Room) Observe(p *lobby.Player) bool {
	if r.over {
		return false
	}
	r.observers[p] = struct{}{}
	return true
}

// PlayerQuit removes the player from the table. A seated departure after
// the game started forfeits and finishes the game, whether voluntary or a
// disconnect; before the start, an emptied table finishes the room so the
// registry can reclaim it. Observer departures never finish the game.
func (r *Room) PlayerQuit(p *lobby.Player, disconnect bool) {
	if _, ok := r.observers[p]; ok {
		delete(r.observers, p)
		return
	}

	seat := r.seatOf(p)
	if seat < 0 {
		return
	}
	r.seats = append(r.seats[:seat], r.seats[seat+1:]...)

	if r.started {
		r.over = true
		return
	}
	if len(r.seats) == 0 {
		r.over = true
	}
}

// HandleGameMessage relays the opaque frame to everyone at the table
// except the sender. The payload is never inspected.
func (r *Room) HandleGameMessage(p *lobby.Player, payload []byte) {
	for _, seated := range r.seats {
		if seated != p {
			_ = seated.Conn.Send(payload)
		}
	}
	for observer := range r.observers {
		if observer != p {
			_ = observer.Conn.Send(payload)
		}
	}
}

// Players returns the seated players in seat order.
func (r *Room) Players() []*lobby.Player {
	out := make([]*lobby.Player, len(r.seats))
	copy(out, r.seats)
	return out
}

// Started reports whether the game has begun.
func (r *Room) Started() bool { return r.started }

// GameOver reports whether the room is finished.
func (r *Room) GameOver() bool { return r.over }

// ObserverCount returns the number of attached observers.
func (r *Room) ObserverCount() int { return len(r.observers) }

// PlayerName returns the display name of the player in the given seat, or
// "" when the seat is empty or out of range.
func (r *Room) PlayerName(seat int) string {
	if seat < 0 || seat >= len(r.seats) {
		return ""
	}
	return r.seats[seat].Name
}

// PlayerDeck returns the deck id of the player in the given seat, or ""
// when the seat is empty or out of range.
func (r *Room) PlayerDeck(seat int) string {
	if seat < 0 || seat >= len(r.seats) {
		return ""
	}
	return r.seats[seat].DeckID
}

func (r *Room) seatOf(p *lobby.Player) int {
	for i, seated := range r.seats {
		if seated == p {
			return i
		}
	}
	return -1
}
