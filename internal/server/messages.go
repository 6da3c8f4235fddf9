package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// inbound events
const (
	EventUserOnline      = "user_online"
	EventJoinChat        = "join_chat"
	EventLeaveChat       = "leave_chat"
	EventSendMessage     = "send_message"
	EventSendLike        = "send_like"
	EventSubscribeToUser = "subscribe_to_user"
)

// outbound events
const (
	EventNewMessage       = "new_message"
	EventNewLike          = "new_like"
	EventUserStatusChange = "user_status_change"
	EventError            = "error"
)

var (
	ErrInvalidEnvelope = errors.New("invalid message format")
	ErrUnknownEvent    = errors.New("unknown event")
)

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %s", e.Field)
}

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	connId string
	closed bool
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Push is a single outbound delivery to one connection.
type Push struct {
	To  string
	Msg *ServerMessage
}

type UserOnline struct {
	UserId string
}

type JoinChat struct {
	RoomId string
}

type LeaveChat struct {
	RoomId string
}

type SendMessage struct {
	RoomId     string
	Text       string
	SenderId   string
	SenderName string
}

type SendLike struct {
	PostId      string
	UserId      string
	UserName    string
	PostOwnerId string
}

type SubscribeToUser struct {
	UserId string
}

// ParseClientMessage decodes a raw frame into an envelope. The payload is kept
// raw and decoded per event.
func ParseClientMessage(raw []byte) (*ClientMessage, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidEnvelope
	}

	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.Str == "" {
		return nil, ErrInvalidEnvelope
	}

	msg := &ClientMessage{Event: event.Str}
	data := gjson.GetBytes(raw, "data")
	switch {
	case !data.Exists() || data.Type == gjson.Null:
		msg.Data = json.RawMessage("{}")
	case data.IsObject():
		msg.Data = json.RawMessage(data.Raw)
	default:
		return nil, ErrInvalidEnvelope
	}

	return msg, nil
}

// fieldReader pulls string fields out of a payload. Ids may arrive as JSON
// strings or numbers; both are read as strings. The first missing required
// field is kept in err.
type fieldReader struct {
	data []byte
	err  error
}

func (fr *fieldReader) required(name string) string {
	v := fr.optional(name)
	if v == "" && fr.err == nil {
		fr.err = &MissingFieldError{Field: name}
	}
	return v
}

func (fr *fieldReader) optional(name string) string {
	res := gjson.GetBytes(fr.data, name)
	switch res.Type {
	case gjson.String, gjson.Number:
		return res.String()
	default:
		return ""
	}
}

func decodeUserOnline(data []byte) (UserOnline, error) {
	fr := &fieldReader{data: data}
	p := UserOnline{UserId: fr.required("userId")}
	return p, fr.err
}

func decodeJoinChat(data []byte) (JoinChat, error) {
	fr := &fieldReader{data: data}
	p := JoinChat{RoomId: fr.required("roomId")}
	return p, fr.err
}

func decodeLeaveChat(data []byte) (LeaveChat, error) {
	fr := &fieldReader{data: data}
	p := LeaveChat{RoomId: fr.required("roomId")}
	return p, fr.err
}

func decodeSendMessage(data []byte) (SendMessage, error) {
	fr := &fieldReader{data: data}
	p := SendMessage{
		RoomId:     fr.required("roomId"),
		Text:       fr.required("text"),
		SenderId:   fr.required("senderId"),
		SenderName: fr.required("senderName"),
	}
	return p, fr.err
}

func decodeSendLike(data []byte) (SendLike, error) {
	fr := &fieldReader{data: data}
	p := SendLike{
		PostId:      fr.required("postId"),
		UserId:      fr.required("userId"),
		UserName:    fr.required("userName"),
		PostOwnerId: fr.optional("postOwnerId"),
	}
	return p, fr.err
}

func decodeSubscribeToUser(data []byte) (SubscribeToUser, error) {
	fr := &fieldReader{data: data}
	p := SubscribeToUser{UserId: fr.required("userId")}
	return p, fr.err
}

func newErrorMessage(code int, message, event string) *ServerMessage {
	return &ServerMessage{
		Event: EventError,
		Data: ErrorData{
			Code:    code,
			Message: message,
			Event:   event,
		},
	}
}

func ErrInvalidMessage() *ServerMessage {
	return newErrorMessage(http.StatusBadRequest, ErrInvalidEnvelope.Error(), "")
}

func ErrUnknownEventMessage(event string) *ServerMessage {
	return newErrorMessage(http.StatusBadRequest, ErrUnknownEvent.Error(), event)
}

func ErrMissingField(event, field string) *ServerMessage {
	return newErrorMessage(http.StatusUnprocessableEntity, (&MissingFieldError{Field: field}).Error(), event)
}

func ErrInternalError(event string) *ServerMessage {
	return newErrorMessage(http.StatusInternalServerError, "internal server error", event)
}

func ErrServiceUnavailable(event string) *ServerMessage {
	return newErrorMessage(http.StatusServiceUnavailable, "service unavailable", event)
}

// errorFor maps a rejection to the error event returned to the sender.
func errorFor(event string, err error) *ServerMessage {
	var mfe *MissingFieldError
	switch {
	case errors.As(err, &mfe):
		return ErrMissingField(event, mfe.Field)
	case errors.Is(err, ErrUnknownEvent):
		return ErrUnknownEventMessage(event)
	default:
		return ErrInternalError(event)
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
