package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/contacts"
	"github.com/kiko-beam/beamlink/internal/dailyco"
	"github.com/kiko-beam/beamlink/internal/models"
	"github.com/kiko-beam/beamlink/internal/presence"
	"github.com/kiko-beam/beamlink/internal/relay"
	"github.com/kiko-beam/beamlink/internal/roomstore"
)

// RoomProvisioner is the slice of the call-room client the REST surface
// needs.
type RoomProvisioner interface {
	CreateOrJoinRoom(ctx context.Context, name string) (dailyco.Room, error)
	RoomURL(name string) string
}

// Handler carries the REST surface's collaborators.
type Handler struct {
	Rooms    roomstore.Store
	Daily    RoomProvisioner
	Relay    *relay.Relay
	Presence presence.Tracker
	Log      zerolog.Logger
}

// CreateRoom provisions a call room and persists its metadata plus a short
// join code. Requires authentication.
func (h *Handler) CreateRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// The body is optional; a missing name gets generated.
	var req models.CreateRoomRequest
	_ = c.ShouldBindJSON(&req)

	roomName := req.RoomName
	if roomName == "" {
		roomName = contacts.GenerateRoomID()
	}

	provisioned, err := h.Daily.CreateOrJoinRoom(c.Request.Context(), roomName)
	if err != nil {
		h.Log.Error().Err(err).Str("room", roomName).Msg("failed to provision call room")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create room"})
		return
	}

	room := models.RoomMetadata{
		ID:        provisioned.Name,
		Code:      roomstore.GenerateCode(),
		URL:       provisioned.URL,
		CreatorID: userID.(string),
		CreatedAt: time.Now(),
	}
	if err := h.Rooms.Save(c.Request.Context(), room); err != nil {
		h.Log.Error().Err(err).Str("room", room.ID).Msg("failed to store room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	h.Log.Info().Str("room", room.ID).Str("code", room.Code).Str("creator", room.CreatorID).Msg("room created")

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID:    room.ID,
		Code:      room.Code,
		RoomURL:   room.URL,
		MobileURL: mobileURL(c, room.ID),
	})
}

// GetRoom returns room metadata by id or join code, with the live peer
// count. Public.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.Rooms.Resolve(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	// Prefer the relay's own table; fall back to mirrored presence.
	room.PeerCount = h.Relay.PeerCount(room.ID)
	if room.PeerCount == 0 {
		room.PeerCount = h.Presence.Count(room.ID)
	}

	c.JSON(http.StatusOK, room)
}

// DeleteRoom removes a room's metadata. Requires authentication; only the
// creator may delete.
func (h *Handler) DeleteRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	room, err := h.Rooms.Resolve(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if room.CreatorID != userID.(string) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	if err := h.Rooms.Delete(c.Request.Context(), room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	h.Log.Info().Str("room", room.ID).Str("user", room.CreatorID).Msg("room deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// Teleport resolves a shared link into a join descriptor: given ?room=<id>,
// the loading client starts an automatic join flow for that room.
func (h *Handler) Teleport(c *gin.Context) {
	roomID := c.Query("room")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room query parameter is required"})
		return
	}

	roomURL := h.Daily.RoomURL(roomID)
	if room, err := h.Rooms.Resolve(c.Request.Context(), roomID); err == nil {
		roomURL = room.URL
	}

	c.JSON(http.StatusOK, models.JoinDescriptor{
		Room:    roomID,
		RoomURL: roomURL,
	})
}

func mobileURL(c *gin.Context, roomID string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/teleport?room=%s", scheme, c.Request.Host, roomID)
}
