package lobby

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message type discriminators.
const (
	TypeJoinRoom        = "join_room"
	TypeObserveRoom     = "observe_room"
	TypeJoinMatchmaking = "join_matchmaking"
	TypeSetName         = "set_name"
	TypeLeaveRoom       = "leave_room"
	TypeGameMessage     = "game_message"
)

// Outbound message type discriminators.
const (
	TypeServerHello    = "server_hello"
	TypeRoomJoinFailed = "room_join_failed"
	TypePlayersUpdate  = "players_update"
)

// Rejection reasons carried in room_join_failed replies.
const (
	ReasonCannotJoinLobby   = "cannot_join_lobby"
	ReasonRoomFull          = "room_full"
	ReasonVersionMismatch   = "version_mismatch"
	ReasonRoomNotFound      = "room_not_found"
	ReasonUnknownJoinError  = "unknown_join_error"
	ReasonMatchmakingFailed = "matchmaking_failed"
)

// ErrNotJSON reports a frame that could not be parsed as a JSON object.
// Such frames are dropped without a reply.
var ErrNotJSON = errors.New("frame is not a JSON object")

// ErrUnknownType reports a frame whose type discriminator matches no
// registered handler.
var ErrUnknownType = errors.New("unknown message type")

// ErrInvalidPayload reports a recognized message whose required fields are
// missing or ill-typed.
var ErrInvalidPayload = errors.New("invalid message payload")

// Command is the closed union of inbound client messages. Exactly the
// concrete types in this file implement it.
type Command interface {
	isCommand()
}

// JoinRoomCommand requests entry into a custom room (or, when the room id
// names the awaiting match room, into matchmaking).
type JoinRoomCommand struct {
	RoomID     string
	DeckID     string
	Version    string
	PlayerName *string
}

// ObserveRoomCommand requests observer attachment to an existing room.
type ObserveRoomCommand struct {
	RoomID     string
	Version    string
	PlayerName *string
}

// JoinMatchmakingCommand requests entry into the single matchmaking slot.
type JoinMatchmakingCommand struct {
	DeckID     string
	Version    string
	PlayerName *string
}

// SetNameCommand requests a display name change.
type SetNameCommand struct {
	PlayerName string
	Version    string
}

// LeaveRoomCommand requests a voluntary departure from the current room.
type LeaveRoomCommand struct{}

// GameMessageCommand carries an opaque frame forwarded verbatim to the
// player's current room.
type GameMessageCommand struct {
	Raw json.RawMessage
}

func (JoinRoomCommand) isCommand()        {}
func (ObserveRoomCommand) isCommand()     {}
func (JoinMatchmakingCommand) isCommand() {}
func (SetNameCommand) isCommand()         {}
func (LeaveRoomCommand) isCommand()       {}
func (GameMessageCommand) isCommand()     {}

type envelope struct {
	Type string `json:"type"`
}

// Raw payload shapes. Pointer fields distinguish absent from empty; a
// non-string value fails unmarshalling outright.
type joinRoomPayload struct {
	RoomID     *string `json:"room_id"`
	DeckID     *string `json:"deck_id"`
	Version    *string `json:"version"`
	PlayerName *string `json:"player_name"`
}

type observeRoomPayload struct {
	RoomID     *string `json:"room_id"`
	Version    *string `json:"version"`
	PlayerName *string `json:"player_name"`
}

type joinMatchmakingPayload struct {
	DeckID     *string `json:"deck_id"`
	Version    *string `json:"version"`
	PlayerName *string `json:"player_name"`
}

type setNamePayload struct {
	PlayerName *string `json:"player_name"`
	Version    *string `json:"version"`
}

// DecodeCommand parses one inbound text frame into a typed command.
//
// Postcondition: Returns exactly one of: a Command and nil error; ErrNotJSON
// when the frame is not a JSON object with a string type; ErrUnknownType for
// an unrecognized discriminator; an error wrapping ErrInvalidPayload when a
// required field is missing or ill-typed.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	switch env.Type {
	case TypeJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
		if err := requireFields(env.Type, field{"room_id", p.RoomID}, field{"deck_id", p.DeckID}, field{"version", p.Version}); err != nil {
			return nil, err
		}
		return JoinRoomCommand{RoomID: *p.RoomID, DeckID: *p.DeckID, Version: *p.Version, PlayerName: p.PlayerName}, nil

	case TypeObserveRoom:
		var p observeRoomPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
		if err := requireFields(env.Type, field{"room_id", p.RoomID}, field{"version", p.Version}); err != nil {
			return nil, err
		}
		return ObserveRoomCommand{RoomID: *p.RoomID, Version: *p.Version, PlayerName: p.PlayerName}, nil

	case TypeJoinMatchmaking:
		var p joinMatchmakingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
		if err := requireFields(env.Type, field{"deck_id", p.DeckID}, field{"version", p.Version}); err != nil {
			return nil, err
		}
		return JoinMatchmakingCommand{DeckID: *p.DeckID, Version: *p.Version, PlayerName: p.PlayerName}, nil

	case TypeSetName:
		var p setNamePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
		if err := requireFields(env.Type, field{"player_name", p.PlayerName}, field{"version", p.Version}); err != nil {
			return nil, err
		}
		return SetNameCommand{PlayerName: *p.PlayerName, Version: *p.Version}, nil

	case TypeLeaveRoom:
		return LeaveRoomCommand{}, nil

	case TypeGameMessage:
		return GameMessageCommand{Raw: json.RawMessage(data)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

type field struct {
	name  string
	value *string
}

func requireFields(msgType string, fields ...field) error {
	for _, f := range fields {
		if f.value == nil {
			return fmt.Errorf("%w: %s missing required field %q", ErrInvalidPayload, msgType, f.name)
		}
	}
	return nil
}

// serverHello is the first message sent on every new connection.
type serverHello struct {
	Type       string `json:"type"`
	PlayerName string `json:"player_name"`
}

// roomJoinFailed reports a domain-rule rejection to the requesting
// connection.
type roomJoinFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
