package server

import (
	"maps"
	"slices"
)

type set map[string]struct{}

// Membership tracks which connections are joined to which rooms. Rooms exist
// only while they have members; the last leave drops the entry.
//
// Membership is not safe for concurrent use; the relay server's run loop owns it.
type Membership struct {
	rooms  map[string]set
	joined map[string]set
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[string]set),
		joined: make(map[string]set),
	}
}

func (m *Membership) Join(connId, roomId string) {
	add(m.rooms, roomId, connId)
	add(m.joined, connId, roomId)
}

func (m *Membership) Leave(connId, roomId string) {
	del(m.rooms, roomId, connId)
	del(m.joined, connId, roomId)
}

// MembersOf returns the sorted connection ids joined to roomId. An unknown
// room has no members.
func (m *Membership) MembersOf(roomId string) []string {
	return sortedKeys(m.rooms[roomId])
}

// RoomsOf returns the sorted room ids connId is joined to.
func (m *Membership) RoomsOf(connId string) []string {
	return sortedKeys(m.joined[connId])
}

func (m *Membership) IsMember(connId, roomId string) bool {
	_, ok := m.rooms[roomId][connId]
	return ok
}

// Purge removes connId from every room it joined and returns those rooms.
func (m *Membership) Purge(connId string) []string {
	rooms := m.RoomsOf(connId)
	for _, roomId := range rooms {
		del(m.rooms, roomId, connId)
	}
	delete(m.joined, connId)

	return rooms
}

// Len returns the number of rooms with at least one member.
func (m *Membership) Len() int {
	return len(m.rooms)
}

func add(index map[string]set, key, member string) {
	s, ok := index[key]
	if !ok {
		s = make(set)
		index[key] = s
	}
	s[member] = struct{}{}
}

func del(index map[string]set, key, member string) {
	s, ok := index[key]
	if !ok {
		return
	}

	delete(s, member)
	if len(s) == 0 {
		delete(index, key)
	}
}

func sortedKeys(s set) []string {
	if len(s) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(s))
}
