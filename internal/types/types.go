package types

import (
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Message struct {
	Id         string    `json:"id"`
	RoomId     string    `json:"roomId"`
	SenderId   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

type Like struct {
	PostId      string    `json:"postId"`
	UserId      string    `json:"userId"`
	UserName    string    `json:"userName"`
	PostOwnerId string    `json:"postOwnerId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type StatusChange struct {
	UserId string `json:"userId"`
	Status Status `json:"status"`
}

type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// LikeDelivery selects who receives a new_like push.
type LikeDelivery string

const (
	// LikeBroadcast sends likes to every connection except the sender.
	LikeBroadcast LikeDelivery = "broadcast"
	// LikeToOwner sends likes only to the post owner's sessions.
	LikeToOwner LikeDelivery = "owner"
)
