package server

import "slices"

// Registry maps a user id to the connection that last announced it. A user
// is reachable through one connection at a time: a later announcement for the
// same user replaces the earlier one.
//
// Registry is not safe for concurrent use; the relay server's run loop owns it.
type Registry struct {
	users map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]string),
	}
}

func (r *Registry) Announce(connId, userId string) {
	r.users[userId] = connId
}

func (r *Registry) Resolve(userId string) (string, bool) {
	connId, ok := r.users[userId]
	return connId, ok
}

// Remove drops every entry pointing at connId and returns the affected user
// ids in sorted order. Entries already taken over by a newer connection are
// left alone.
func (r *Registry) Remove(connId string) []string {
	var removed []string
	for userId, id := range r.users {
		if id == connId {
			delete(r.users, userId)
			removed = append(removed, userId)
		}
	}

	slices.Sort(removed)
	return removed
}

func (r *Registry) Len() int {
	return len(r.users)
}
