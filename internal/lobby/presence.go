package lobby

import (
	"encoding/json"

	"go.uber.org/zap"
)

// LobbyRoomName is the reserved pseudo-room clients show for players not
// currently in any room. It never enters the room registry.
const LobbyRoomName = "Lobby"

// PlayerInfo is one player's entry in a presence snapshot.
type PlayerInfo struct {
	PlayerID int    `json:"player_id"`
	Version  string `json:"player_version"`
	Name     string `json:"player_name"`
	Deck     string `json:"player_deck"`
	RoomName string `json:"room_name"`
}

// RoomInfo is one room's entry in a presence snapshot. Seat arrays are
// padded with empty strings for unfilled seats.
type RoomInfo struct {
	Name          string    `json:"room_name"`
	Version       string    `json:"room_version"`
	PlayerCount   int       `json:"player_count"`
	ObserverCount int       `json:"observer_count"`
	GameStarted   bool      `json:"game_started"`
	PlayerNames   [2]string `json:"player_names"`
	PlayerDecks   [2]string `json:"player_decks"`
}

// PlayersUpdate is the full lobby state snapshot broadcast to every
// connection on every state-affecting event. It is a complete resync, not
// a diff; clients are expected to replace their view wholesale.
type PlayersUpdate struct {
	Type           string       `json:"type"`
	Players        []PlayerInfo `json:"players"`
	Rooms          []RoomInfo   `json:"rooms"`
	MatchAvailable bool         `json:"match_available"`
}

// buildSnapshot assembles the current presence snapshot.
func (c *Coordinator) buildSnapshot() PlayersUpdate {
	update := PlayersUpdate{
		Type:           TypePlayersUpdate,
		Players:        make([]PlayerInfo, 0, len(c.players)),
		Rooms:          make([]RoomInfo, 0, len(c.rooms)),
		MatchAvailable: c.awaiting != "",
	}

	for _, p := range c.players {
		roomName := LobbyRoomName
		if p.Room != nil {
			roomName = p.Room.Name()
		}
		update.Players = append(update.Players, PlayerInfo{
			PlayerID: p.ID,
			Version:  p.Version,
			Name:     p.Name,
			Deck:     p.DeckID,
			RoomName: roomName,
		})
	}

	for _, room := range c.rooms {
		info := RoomInfo{
			Name:          room.Name(),
			Version:       room.Version(),
			PlayerCount:   len(room.Players()),
			ObserverCount: room.ObserverCount(),
			GameStarted:   room.Started(),
		}
		for seat := 0; seat < 2; seat++ {
			info.PlayerNames[seat] = room.PlayerName(seat)
			info.PlayerDecks[seat] = room.PlayerDeck(seat)
		}
		update.Rooms = append(update.Rooms, info)
	}

	return update
}

// broadcastPresence sends one identical snapshot to every connected
// player. Sends are best effort; a slow or dead connection loses the
// snapshot and catches up on the next one.
func (c *Coordinator) broadcastPresence() {
	update := c.buildSnapshot()
	data, err := json.Marshal(update)
	if err != nil {
		c.logger.Error("marshalling presence snapshot", zap.Error(err))
		return
	}

	for _, p := range c.players {
		if err := p.Conn.Send(data); err != nil {
			c.logger.Debug("presence send failed",
				zap.Int("player_id", p.ID),
				zap.Error(err),
			)
		}
	}
}
