package presence

import (
	"sort"

	"github.com/samber/lo"
)

// RoomIndex is a read-only view over a Registry. It keeps no state of its
// own, so it can never disagree with the registry.
type RoomIndex struct {
	registry *Registry
}

// NewRoomIndex returns the index derived from registry.
func NewRoomIndex(registry *Registry) RoomIndex {
	return RoomIndex{registry: registry}
}

// ActiveRooms returns the sorted names of rooms with at least one member.
func (ix RoomIndex) ActiveRooms() []string {
	rooms := lo.FilterMap(ix.registry.All(), func(c Connection, _ int) (string, bool) {
		return c.Room, c.InRoom()
	})
	rooms = lo.Uniq(rooms)
	sort.Strings(rooms)
	return rooms
}

// MemberCount returns the number of connections in room.
func (ix RoomIndex) MemberCount(room string) int {
	return len(ix.registry.MembersOf(room))
}

// HistoricalRooms returns the sorted names of every room used since start,
// including rooms that are empty now.
func (ix RoomIndex) HistoricalRooms() []string {
	rooms := ix.registry.usedRooms()
	sort.Strings(rooms)
	return rooms
}
