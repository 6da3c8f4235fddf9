package server

import (
	"fmt"
	"maps"
	"slices"

	"github.com/npezzotti/go-relay/internal/types"
)

type connection struct {
	id     string
	userId string
}

// Relay holds the process-wide relay state: live connections, the user
// registry and room membership. Each transport event is applied with one
// method call that returns the pushes to deliver.
//
// Relay is not safe for concurrent use. RelayServer serializes every call.
type Relay struct {
	conns    map[string]*connection
	registry *Registry
	members  *Membership
	router   *Router
}

func NewRelay(router *Router) *Relay {
	return &Relay{
		conns:    make(map[string]*connection),
		registry: NewRegistry(),
		members:  NewMembership(),
		router:   router,
	}
}

func (r *Relay) Connect(connId string) {
	if _, ok := r.conns[connId]; ok {
		return
	}
	r.conns[connId] = &connection{id: connId}
}

// Handle applies one inbound event from connId. A rejected event returns the
// reason and a single error push addressed to the sender.
func (r *Relay) Handle(connId string, msg *ClientMessage) ([]Push, error) {
	conn, ok := r.conns[connId]
	if !ok {
		return nil, fmt.Errorf("connection %q not registered", connId)
	}

	pushes, err := r.dispatch(conn, msg)
	if err != nil {
		return []Push{{To: connId, Msg: errorFor(msg.Event, err)}}, fmt.Errorf("%s: %w", msg.Event, err)
	}

	return pushes, nil
}

func (r *Relay) dispatch(conn *connection, msg *ClientMessage) ([]Push, error) {
	switch msg.Event {
	case EventUserOnline:
		p, err := decodeUserOnline(msg.Data)
		if err != nil {
			return nil, err
		}
		return r.announce(conn, p.UserId), nil
	case EventJoinChat:
		p, err := decodeJoinChat(msg.Data)
		if err != nil {
			return nil, err
		}
		r.members.Join(conn.id, p.RoomId)
		return nil, nil
	case EventLeaveChat:
		p, err := decodeLeaveChat(msg.Data)
		if err != nil {
			return nil, err
		}
		r.members.Leave(conn.id, p.RoomId)
		return nil, nil
	case EventSendMessage:
		p, err := decodeSendMessage(msg.Data)
		if err != nil {
			return nil, err
		}
		return r.router.RouteMessage(r, p)
	case EventSendLike:
		p, err := decodeSendLike(msg.Data)
		if err != nil {
			return nil, err
		}
		return r.router.RouteLike(r, conn.id, p)
	case EventSubscribeToUser:
		p, err := decodeSubscribeToUser(msg.Data)
		if err != nil {
			return nil, err
		}
		r.members.Join(conn.id, NotificationRoom(p.UserId))
		return nil, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (r *Relay) announce(conn *connection, userId string) []Push {
	conn.userId = userId
	r.registry.Announce(conn.id, userId)

	return r.router.RoutePresenceChange(r, types.StatusChange{
		UserId: userId,
		Status: types.StatusOnline,
	}, conn.id)
}

// Disconnect removes connId from every room and from the registry, then
// announces each user it was serving as offline to the remaining connections.
func (r *Relay) Disconnect(connId string) []Push {
	if _, ok := r.conns[connId]; !ok {
		return nil
	}

	r.members.Purge(connId)
	users := r.registry.Remove(connId)
	delete(r.conns, connId)

	var pushes []Push
	for _, userId := range users {
		pushes = append(pushes, r.router.RoutePresenceChange(r, types.StatusChange{
			UserId: userId,
			Status: types.StatusOffline,
		}, connId)...)
	}

	return pushes
}

func (r *Relay) MembersOf(roomId string) []string {
	return r.members.MembersOf(roomId)
}

func (r *Relay) RoomsOf(connId string) []string {
	return r.members.RoomsOf(connId)
}

func (r *Relay) Resolve(userId string) (string, bool) {
	return r.registry.Resolve(userId)
}

func (r *Relay) Connections() []string {
	return slices.Sorted(maps.Keys(r.conns))
}

// UserOf returns the user id connId announced, if any.
func (r *Relay) UserOf(connId string) (string, bool) {
	conn, ok := r.conns[connId]
	if !ok || conn.userId == "" {
		return "", false
	}
	return conn.userId, true
}

func (r *Relay) Stats() types.Stats {
	return types.Stats{
		Connections: len(r.conns),
		Users:       r.registry.Len(),
		Rooms:       r.members.Len(),
	}
}
