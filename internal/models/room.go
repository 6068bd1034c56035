package models

import "time"

// RoomMetadata stores information about a provisioned call room.
type RoomMetadata struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"` // Short, shareable join code (e.g., "ABCD123")
	URL       string    `json:"url"`  // External call-room URL
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
	PeerCount int       `json:"peerCount"`
}

// CreateRoomRequest is the request body for provisioning a room.
type CreateRoomRequest struct {
	RoomName string `json:"roomName,omitempty"`
}

// CreateRoomResponse is the response for provisioning a room.
type CreateRoomResponse struct {
	RoomID    string `json:"roomId"`
	Code      string `json:"code"`
	RoomURL   string `json:"roomUrl"`
	MobileURL string `json:"mobileUrl"`
}

// JoinDescriptor is returned by the mobile entry endpoint so a loading
// client can resolve a shared link into an automatic join flow.
type JoinDescriptor struct {
	Room    string `json:"room"`
	RoomURL string `json:"roomUrl"`
}
