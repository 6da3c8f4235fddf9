package server

import (
	"fmt"
	"slices"
	"time"

	"github.com/npezzotti/go-relay/internal/types"
	"github.com/teris-io/shortid"
)

const notificationRoomPrefix = "user_"

// NotificationRoom is the implicit per-user room joined by subscribe_to_user.
func NotificationRoom(userId string) string {
	return notificationRoomPrefix + userId
}

// State is the read-only view of relay state the router routes against.
type State interface {
	MembersOf(roomId string) []string
	Resolve(userId string) (string, bool)
	Connections() []string
}

// Router turns validated inbound events into pushes. It holds no relay state.
type Router struct {
	likes types.LikeDelivery
	newId func() (string, error)
	now   func() time.Time
}

func NewRouter(likes types.LikeDelivery) *Router {
	return &Router{
		likes: likes,
		newId: shortid.Generate,
		now:   Now,
	}
}

// RouteMessage stamps msg and delivers it to every member of its room,
// the sender's own connection included.
func (rt *Router) RouteMessage(st State, msg SendMessage) ([]Push, error) {
	id, err := rt.newId()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	out := &ServerMessage{
		Event: EventNewMessage,
		Data: types.Message{
			Id:         id,
			RoomId:     msg.RoomId,
			SenderId:   msg.SenderId,
			SenderName: msg.SenderName,
			Text:       msg.Text,
			Timestamp:  rt.now(),
		},
	}

	return fanOut(st.MembersOf(msg.RoomId), out, ""), nil
}

// RouteLike stamps like and delivers it according to the configured like
// delivery. senderConn never receives its own like.
func (rt *Router) RouteLike(st State, senderConn string, like SendLike) ([]Push, error) {
	out := &ServerMessage{
		Event: EventNewLike,
		Data: types.Like{
			PostId:      like.PostId,
			UserId:      like.UserId,
			UserName:    like.UserName,
			PostOwnerId: like.PostOwnerId,
			Timestamp:   rt.now(),
		},
	}

	if rt.likes != types.LikeToOwner {
		return fanOut(st.Connections(), out, senderConn), nil
	}

	if like.PostOwnerId == "" {
		return nil, &MissingFieldError{Field: "postOwnerId"}
	}

	targets := st.MembersOf(NotificationRoom(like.PostOwnerId))
	if connId, ok := st.Resolve(like.PostOwnerId); ok && !slices.Contains(targets, connId) {
		targets = append(targets, connId)
		slices.Sort(targets)
	}

	return fanOut(targets, out, senderConn), nil
}

// RoutePresenceChange tells every connection except except about a user's
// new status. An empty except reaches everyone.
func (rt *Router) RoutePresenceChange(st State, change types.StatusChange, except string) []Push {
	out := &ServerMessage{
		Event: EventUserStatusChange,
		Data:  change,
	}

	return fanOut(st.Connections(), out, except)
}

func fanOut(targets []string, msg *ServerMessage, skip string) []Push {
	pushes := make([]Push, 0, len(targets))
	for _, connId := range targets {
		if connId == skip && skip != "" {
			continue
		}
		pushes = append(pushes, Push{To: connId, Msg: msg})
	}

	return pushes
}
