package core

import "strings"

// PublicRoom is the single well-known public room. It always exists and can
// never be deleted.
const PublicRoom = "general"

const privatePrefix = "private_"

// RoomKind classifies a room by its identifier syntax.
type RoomKind int

const (
	// KindPublic is the shared public room.
	KindPublic RoomKind = iota
	// KindPrivate is a two-party direct room.
	KindPrivate
	// KindGroup is a named multi-party room.
	KindGroup
)

func (k RoomKind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindPrivate:
		return "private"
	default:
		return "group"
	}
}

// Room is a parsed room identifier. The kind is computed once at ingestion so
// the rest of the client never re-parses identifier strings.
type Room struct {
	ID   string
	Kind RoomKind

	// UserA and UserB are the encoded participants of a private room, in
	// identifier order. They are not validated beyond underscore splitting.
	UserA string
	UserB string
}

// ParseRoom classifies a room identifier. Identifiers are opaque strings;
// classification only looks at the well-known name and the private prefix.
func ParseRoom(id string) Room {
	if id == PublicRoom {
		return Room{ID: id, Kind: KindPublic}
	}
	if rest, ok := strings.CutPrefix(id, privatePrefix); ok {
		parts := strings.SplitN(rest, "_", 2)
		r := Room{ID: id, Kind: KindPrivate, UserA: parts[0]}
		if len(parts) > 1 {
			r.UserB = parts[1]
		}
		return r
	}
	return Room{ID: id, Kind: KindGroup}
}

// DisplayName derives what the given local user should see as the room title.
// For private rooms that is the other participant's name; the first
// participant wins when neither (or both) matches the local nickname.
func (r Room) DisplayName(localNick string) string {
	switch r.Kind {
	case KindPublic:
		return PublicRoom
	case KindPrivate:
		if r.UserA != localNick {
			return r.UserA
		}
		if r.UserB != "" && r.UserB != localNick {
			return r.UserB
		}
		return r.UserA
	default:
		return r.ID
	}
}
