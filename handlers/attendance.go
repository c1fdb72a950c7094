package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meetchain-backend/attendance"
	"meetchain-backend/contracts"
	"meetchain-backend/fhe"
)

type AttendanceHandler struct {
	manager *attendance.Manager
}

func NewAttendanceHandler(manager *attendance.Manager) *AttendanceHandler {
	return &AttendanceHandler{manager: manager}
}

// SignIn submits the encrypted "I attended" signal for an event.
func (h *AttendanceHandler) SignIn(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	attempt, detail, err := h.manager.SignIn(c.Request.Context(), eventID)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrSignInPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Sign-in already in progress for this event", "attempt": attempt})
		case errors.Is(err, attendance.ErrEventNotOngoing):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Event is not currently ongoing"})
		case errors.Is(err, contracts.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		default:
			log.Printf("Sign-in failed for event %d: %v", eventID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Sign-in failed", "details": err.Error(), "attempt": attempt})
		}
		return
	}

	message := "Successfully signed in to event"
	if attempt.RefreshFailed {
		message = "Successfully signed in to event, but re-reading it failed; fetch the event again for the updated count"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"attempt": attempt,
		"event":   detail,
	})
}

// DecryptCount resolves the event's aggregate attendance count for the
// configured user.
func (h *AttendanceHandler) DecryptCount(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	count, err := h.manager.DecryptCount(c.Request.Context(), eventID)
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		case errors.Is(err, fhe.ErrSignatureRejected):
			c.JSON(http.StatusForbidden, gin.H{"error": "Decryption authorization was rejected"})
		case errors.Is(err, fhe.ErrNotCovered):
			c.JSON(http.StatusForbidden, gin.H{"error": "Authorization does not cover this contract"})
		default:
			log.Printf("Decrypt failed for event %d: %v", eventID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to decrypt attendance count", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id": eventID,
		"count":    count.String(),
	})
}
