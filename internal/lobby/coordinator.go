// Package lobby implements the session coordinator for the card game
// server: connection identity, room registry lifecycle, single-slot
// matchmaking with version arbitration, presence broadcast, and the
// idle-session watchdog.
//
// All shared state is owned by one goroutine, the coordinator loop.
// Transport pumps and watchdog timers reach it exclusively by enqueuing
// events, so handlers run to completion one at a time and registry
// mutations need no locking.
package lobby

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deckmatch/lobbyd/internal/config"
)

// customRoomPrefix qualifies client-chosen room ids so they can never
// collide with matchmade "Match_<n>" names.
const customRoomPrefix = "custom_"

// matchRoomPrefix qualifies matchmade room names.
const matchRoomPrefix = "Match_"

type eventKind int

const (
	evOpen eventKind = iota
	evFrame
	evClosed
	evExpired
)

// event is one unit of work for the coordinator loop.
type event struct {
	kind eventKind
	conn Conn   // evOpen only
	id   ConnID // evFrame, evClosed, evExpired
	data []byte // evFrame only
}

// Coordinator owns the connection registry, the room registry, the
// matchmaking slot, and both identifier allocators. It implements the
// transport handler surface and the server.Service contract.
type Coordinator struct {
	cfg     config.LobbyConfig
	logger  *zap.Logger
	newRoom RoomFactory

	events chan event
	done   chan struct{}
	once   sync.Once

	// State below is touched only by the run loop.
	players   map[ConnID]*Player
	rooms     map[string]GameRoom
	awaiting  string // name of the match room awaiting an opponent; "" when none
	playerIDs idAllocator
	matchIDs  idAllocator
}

// NewCoordinator creates a Coordinator with empty registries.
//
// Precondition: logger and newRoom must be non-nil; cfg must be validated.
// Postcondition: Returns a Coordinator ready to be started.
func NewCoordinator(cfg config.LobbyConfig, newRoom RoomFactory, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		logger:  logger,
		newRoom: newRoom,
		events:  make(chan event, cfg.EventBuffer),
		done:    make(chan struct{}),
		players: make(map[ConnID]*Player),
		rooms:   make(map[string]GameRoom),
	}
}

// Start runs the coordinator loop until Stop is called.
//
// Postcondition: All watchdogs are cancelled and all connections closed
// when this method returns.
func (c *Coordinator) Start() error {
	for {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
		case <-c.done:
			c.shutdown()
			return nil
		}
	}
}

// Stop signals the coordinator loop to exit. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.done) })
}

// HandleOpen enqueues a connection-open event. Called by the transport.
func (c *Coordinator) HandleOpen(conn Conn) {
	c.enqueue(event{kind: evOpen, conn: conn})
}

// HandleFrame enqueues one inbound text frame. Called by the transport.
func (c *Coordinator) HandleFrame(id ConnID, data []byte) {
	c.enqueue(event{kind: evFrame, id: id, data: data})
}

// HandleClose enqueues a connection-close event. Called by the transport;
// delivering it more than once for the same connection is harmless.
func (c *Coordinator) HandleClose(id ConnID) {
	c.enqueue(event{kind: evClosed, id: id})
}

func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) dispatch(ev event) {
	switch ev.kind {
	case evOpen:
		c.handleOpen(ev.conn)
	case evFrame:
		c.handleFrame(ev.id, ev.data)
	case evClosed:
		c.handleDisconnect(ev.id)
	case evExpired:
		c.handleExpired(ev.id)
	}
}

// handleOpen registers a new player session for the connection, greets it,
// and announces the new lobby state.
func (c *Coordinator) handleOpen(conn Conn) {
	id := c.playerIDs.Next()
	p := &Player{
		ID:   id,
		Name: fmt.Sprintf("Anon_%d", id),
		Conn: conn,
	}
	c.players[conn.ID()] = p
	c.armWatchdog(p)

	c.logger.Info("player connected",
		zap.Int("player_id", p.ID),
		zap.String("conn_id", string(conn.ID())),
	)

	c.send(p, serverHello{Type: TypeServerHello, PlayerName: p.Name})
	c.broadcastPresence()
}

// handleFrame rearms the sender's watchdog, decodes the frame, and routes
// it to exactly one handler. Malformed frames never terminate the
// connection.
func (c *Coordinator) handleFrame(id ConnID, data []byte) {
	p, ok := c.players[id]
	if !ok {
		return
	}
	c.armWatchdog(p)

	cmd, err := DecodeCommand(data)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotJSON):
			c.logger.Debug("dropping unparseable frame",
				zap.Int("player_id", p.ID),
				zap.Error(err),
			)
		default:
			// Unknown type or bad shape: log, then echo back as a
			// diagnostic acknowledgement.
			c.logger.Debug("unhandled frame",
				zap.Int("player_id", p.ID),
				zap.Error(err),
			)
			if sendErr := p.Conn.Send([]byte("I got your: " + string(data))); sendErr != nil {
				c.logger.Debug("echo send failed", zap.Int("player_id", p.ID), zap.Error(sendErr))
			}
		}
		return
	}

	switch cmd := cmd.(type) {
	case JoinRoomCommand:
		c.handleJoinRoom(p, cmd)
	case ObserveRoomCommand:
		c.handleObserveRoom(p, cmd)
	case JoinMatchmakingCommand:
		c.handleJoinMatchmaking(p, cmd)
	case SetNameCommand:
		c.assignName(p, cmd.PlayerName, cmd.Version)
	case LeaveRoomCommand:
		c.leaveRoom(p, false)
	case GameMessageCommand:
		if p.Room != nil {
			p.Room.HandleGameMessage(p, cmd.Raw)
		}
	}
}

// handleJoinRoom processes a join_room request: custom-room entry, or a
// redirect into matchmaking when the id names the awaiting match room.
func (c *Coordinator) handleJoinRoom(p *Player, cmd JoinRoomCommand) {
	// A placement request departs the current room first; a player is
	// never in two room collections at once.
	if p.Room != nil {
		c.leaveRoom(p, false)
	}

	p.Version = cmd.Version
	if cmd.PlayerName != nil {
		c.assignName(p, *cmd.PlayerName, cmd.Version)
	}

	roomID := strings.TrimSpace(cmd.RoomID)
	if roomID == LobbyRoomName {
		c.sendJoinFailure(p, ReasonCannotJoinLobby)
		return
	}

	// Joining the awaiting match room by name goes through matchmaking so
	// version arbitration and slot bookkeeping stay in one place.
	if c.awaiting != "" && c.awaiting == roomID {
		c.handleJoinMatchmaking(p, JoinMatchmakingCommand{DeckID: cmd.DeckID, Version: cmd.Version})
		return
	}

	name := customRoomPrefix + roomID
	p.DeckID = cmd.DeckID

	if room, ok := c.rooms[name]; ok {
		if room.Version() != cmd.Version {
			c.sendJoinFailure(p, ReasonVersionMismatch)
			return
		}
		if room.Join(p) {
			p.Room = room
		} else {
			c.sendJoinFailure(p, ReasonRoomFull)
		}
	} else {
		// First occupant creates the room at their version.
		room := c.newRoom(cmd.Version, name)
		room.Join(p)
		p.Room = room
		c.rooms[name] = room
		c.logger.Info("custom room created",
			zap.String("room", name),
			zap.String("version", cmd.Version),
		)
	}

	c.broadcastPresence()
}

// handleObserveRoom attaches the player as an observer, resolving the bare
// room id first and the custom_-prefixed id second.
func (c *Coordinator) handleObserveRoom(p *Player, cmd ObserveRoomCommand) {
	if p.Room != nil {
		c.leaveRoom(p, false)
	}

	p.Version = cmd.Version
	if cmd.PlayerName != nil {
		c.assignName(p, *cmd.PlayerName, cmd.Version)
	}

	roomID := strings.TrimSpace(cmd.RoomID)
	if roomID == LobbyRoomName {
		c.sendJoinFailure(p, ReasonCannotJoinLobby)
		return
	}

	room, ok := c.rooms[roomID]
	if !ok {
		room, ok = c.rooms[customRoomPrefix+roomID]
	}
	if !ok {
		c.sendJoinFailure(p, ReasonRoomNotFound)
		return
	}

	if room.Version() != cmd.Version {
		c.sendJoinFailure(p, ReasonVersionMismatch)
		return
	}
	if !room.Observe(p) {
		c.sendJoinFailure(p, ReasonUnknownJoinError)
		return
	}

	p.Room = room
	c.broadcastPresence()
}

// handleJoinMatchmaking runs the single-slot matchmaking algorithm:
// an empty slot opens a fresh match room; an occupied slot pairs equal
// versions, rejects older requesters, and trades out the waiting occupant
// when the requester is newer.
func (c *Coordinator) handleJoinMatchmaking(p *Player, cmd JoinMatchmakingCommand) {
	// Departing first also handles a waiting player queueing again: their
	// old match room is reclaimed and the slot reopens before the new
	// request is placed.
	if p.Room != nil {
		c.leaveRoom(p, false)
	}

	p.Version = cmd.Version
	if cmd.PlayerName != nil {
		c.assignName(p, *cmd.PlayerName, cmd.Version)
	}
	p.DeckID = cmd.DeckID

	success := false
	if c.awaiting == "" {
		c.createMatchRoom(cmd.Version, p)
		success = true
	} else if room, ok := c.rooms[c.awaiting]; ok {
		switch {
		case cmd.Version > room.Version():
			// Requester is newer: evict the waiting occupant rather than
			// blocking progress. The evicted player is not re-queued.
			if seated := room.Players(); len(seated) > 0 {
				evicted := seated[0]
				c.sendJoinFailure(evicted, ReasonVersionMismatch)
				c.leaveRoom(evicted, true)
			}
			c.createMatchRoom(cmd.Version, p)
			success = true

		case cmd.Version < room.Version():
			// Requester is older: reject, no state change.
			c.sendJoinFailure(p, ReasonVersionMismatch)
			return

		default:
			success = room.Join(p)
			if success {
				p.Room = room
				c.logger.Info("match room filled",
					zap.String("room", room.Name()),
					zap.Int("player_id", p.ID),
				)
			}
			c.awaiting = ""
		}
	} else {
		// Slot names a room that no longer exists: the occupant
		// disconnected. Treat as empty.
		c.createMatchRoom(cmd.Version, p)
		success = true
	}

	if !success {
		c.sendJoinFailure(p, ReasonMatchmakingFailed)
	}
	c.broadcastPresence()
}

// createMatchRoom allocates the next match id, seats the player in a fresh
// room, and points the matchmaking slot at it.
func (c *Coordinator) createMatchRoom(version string, p *Player) {
	name := matchRoomPrefix + strconv.Itoa(c.matchIDs.Next())
	room := c.newRoom(version, name)
	room.Join(p)
	p.Room = room
	c.rooms[name] = room
	c.awaiting = name

	c.logger.Info("match room created",
		zap.String("room", name),
		zap.String("version", version),
		zap.Int("player_id", p.ID),
	)
}

// assignName applies the naming rules: an empty or case-insensitively
// unchanged request keeps the current name, and collisions with other
// connected players grow a cyclic-id suffix until unique. Always followed
// by a presence broadcast.
func (c *Coordinator) assignName(p *Player, desired, version string) {
	if desired == "" || strings.EqualFold(p.Name, desired) {
		desired = p.Name
	}

	name := desired
	for c.nameTaken(p, name) {
		name = desired + "_" + strconv.Itoa(c.playerIDs.Next())
	}

	p.Name = name
	p.Version = version

	c.logger.Info("player name set",
		zap.Int("player_id", p.ID),
		zap.String("name", name),
	)
	c.broadcastPresence()
}

// nameTaken reports whether any other connected player holds the name,
// compared case-insensitively.
func (c *Coordinator) nameTaken(ignore *Player, name string) bool {
	for _, other := range c.players {
		if other == ignore {
			continue
		}
		if strings.EqualFold(other.Name, name) {
			return true
		}
	}
	return false
}

// leaveRoom removes the player from their current room, clearing the
// matchmaking slot when the room was awaiting an opponent and tearing the
// room down when it reports game over. No-op for players in the Lobby.
func (c *Coordinator) leaveRoom(p *Player, disconnect bool) {
	if p.Room == nil {
		return
	}

	roomName := p.Room.Name()
	if c.awaiting == roomName {
		c.awaiting = ""
	}

	p.Room.PlayerQuit(p, disconnect)
	if p.Room.GameOver() {
		c.logger.Info("closing room", zap.String("room", roomName))
		delete(c.rooms, roomName)
	}
	p.Room = nil

	c.broadcastPresence()
}

// handleDisconnect tears down the player for a closed connection. Safe to
// call repeatedly: a second close for the same connection is a no-op.
func (c *Coordinator) handleDisconnect(id ConnID) {
	p, ok := c.players[id]
	if !ok {
		return
	}

	c.logger.Info("player disconnected",
		zap.Int("player_id", p.ID),
		zap.String("name", p.Name),
	)

	c.leaveRoom(p, true)
	if p.idle != nil {
		p.idle.Stop()
	}
	delete(c.players, id)
	c.broadcastPresence()
}

// handleExpired force-closes a connection whose watchdog fired. The
// transport's close notification then drives the normal disconnect path.
func (c *Coordinator) handleExpired(id ConnID) {
	p, ok := c.players[id]
	if !ok {
		return
	}

	c.logger.Info("player timed out",
		zap.Int("player_id", p.ID),
		zap.String("name", p.Name),
	)
	if err := p.Conn.Close(); err != nil {
		c.logger.Debug("closing timed-out connection", zap.Error(err))
	}
}

// armWatchdog (re)starts the player's idle timer. Expiry enqueues a
// synthetic session-expired event so the close happens on the coordinator
// loop like any other event.
func (c *Coordinator) armWatchdog(p *Player) {
	if p.idle != nil {
		p.idle.Stop()
	}
	id := p.Conn.ID()
	p.idle = time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.enqueue(event{kind: evExpired, id: id})
	})
}

// sendJoinFailure reports a domain-rule rejection to one connection.
func (c *Coordinator) sendJoinFailure(p *Player, reason string) {
	c.send(p, roomJoinFailed{Type: TypeRoomJoinFailed, Reason: reason})
}

// send marshals and enqueues one message for one connection, best effort.
func (c *Coordinator) send(p *Player, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshalling message", zap.Error(err))
		return
	}
	if err := p.Conn.Send(data); err != nil {
		c.logger.Debug("send failed",
			zap.Int("player_id", p.ID),
			zap.Error(err),
		)
	}
}

// shutdown cancels every watchdog and closes every connection. Runs on the
// coordinator loop after Stop.
func (c *Coordinator) shutdown() {
	for id, p := range c.players {
		if p.idle != nil {
			p.idle.Stop()
		}
		_ = p.Conn.Close()
		delete(c.players, id)
	}
	c.logger.Info("coordinator stopped")
}
