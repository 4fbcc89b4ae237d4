package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/core"
	"github.com/pairwave/pairwave-server/internal/history"
)

// APIHandlers serves the REST surface around the relay: backlog hydration,
// the call-event notification log, and push subscription management.
type APIHandlers struct {
	history      history.Gateway
	historyLimit int
	log          *zerolog.Logger
}

// NewAPIHandlers creates the REST handlers.
func NewAPIHandlers(gw history.Gateway, historyLimit int, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		history:      gw,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

// NotificationResponse represents a call-event record in API responses.
type NotificationResponse struct {
	Room      string          `json:"room"`
	Sender    string          `json:"sender"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// RoomMessages returns the recent backlog for the pair room shared with
// :peer, oldest first, for a reconnecting client to hydrate from. A gateway
// outage yields an empty backlog, not an error.
func (h *APIHandlers) RoomMessages(c *gin.Context) {
	me := c.GetString(ContextKeyUsername)
	peer := c.Param("peer")
	room := core.PairRoomName(me, peer)

	recs, err := h.history.RecentMessages(c.Request.Context(), room, h.historyLimit)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("history query failed, serving empty backlog")
		recs = nil
	}

	// Query is newest-first; clients render oldest-first.
	out := make([]MessageResponse, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		out = append(out, MessageResponse{
			ID:        rec.ID,
			Room:      rec.Room,
			Sender:    rec.Sender,
			Message:   rec.Body,
			Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
			Read:      rec.Read,
		})
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "messages": out})
}

// Notifications returns recent call events addressed to the caller, newest
// first.
func (h *APIHandlers) Notifications(c *gin.Context) {
	me := c.GetString(ContextKeyUsername)

	recs, err := h.history.RecentCallEvents(c.Request.Context(), me, h.historyLimit)
	if err != nil {
		h.log.Warn().Err(err).Str("identity", me).Msg("notification query failed, serving empty list")
		recs = nil
	}

	out := make([]NotificationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NotificationResponse{
			Room:      rec.Room,
			Sender:    rec.Sender,
			Type:      rec.Type,
			Payload:   rec.Payload,
			Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		})
	}

	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// SubscribePushRequest is the request body for saving a push subscription.
type SubscribePushRequest struct {
	Subscription json.RawMessage `json:"subscription" binding:"required"`
}

// SubscribePush upserts the caller's push subscription. Each identity owns
// exactly one current subscription; a new one overwrites the old.
func (h *APIHandlers) SubscribePush(c *gin.Context) {
	me := c.GetString(ContextKeyUsername)

	var req SubscribePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "subscription is required"})
		return
	}

	if err := h.history.SaveSubscription(c.Request.Context(), me, req.Subscription); err != nil {
		h.log.Warn().Err(err).Str("identity", me).Msg("subscription save failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "subscription saved"})
}
