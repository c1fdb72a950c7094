package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"meetchain-backend/contracts"
	"meetchain-backend/indexer"
	"meetchain-backend/models"
)

type EventHandler struct {
	scanner *indexer.Scanner
	ledger  contracts.Ledger
}

func NewEventHandler(scanner *indexer.Scanner, ledger contracts.Ledger) *EventHandler {
	return &EventHandler{
		scanner: scanner,
		ledger:  ledger,
	}
}

// GetEvents re-scans the ledger and returns the full index, bucketed by
// temporal status. An optional ?status= filter narrows the response.
func (h *EventHandler) GetEvents(c *gin.Context) {
	events, err := h.scanner.ScanAll(c.Request.Context())
	if err != nil {
		log.Printf("Ledger scan failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to scan event ledger", "details": err.Error()})
		return
	}

	now := time.Now()
	buckets := models.BucketEvents(events, now)

	switch strings.ToUpper(c.Query("status")) {
	case models.StatusOngoing:
		c.JSON(http.StatusOK, gin.H{"events": buckets.Ongoing, "total": len(buckets.Ongoing)})
	case models.StatusUpcoming:
		c.JSON(http.StatusOK, gin.H{"events": buckets.Upcoming, "total": len(buckets.Upcoming)})
	case models.StatusEnded:
		c.JSON(http.StatusOK, gin.H{"events": buckets.Ended, "total": len(buckets.Ended)})
	case "":
		c.JSON(http.StatusOK, gin.H{
			"events":   events,
			"total":    len(events),
			"ongoing":  buckets.Ongoing,
			"upcoming": buckets.Upcoming,
			"ended":    buckets.Ended,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter, expected UPCOMING, ONGOING or ENDED"})
	}
}

// GetEvent returns a single event's header and encrypted-counter
// handle. A missing event and an unreachable node are reported
// distinctly.
func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	detail, err := h.scanner.LoadEvent(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, contracts.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		log.Printf("Failed to load event %d: %v", eventID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read event", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// CreateEvent registers a new event on the ledger. Organizer only: the
// service must be configured with a signing key.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("Creating event: cid=%s start=%d end=%d mintPOAP=%t", req.MetadataCID, req.StartTime, req.EndTime, req.MintPOAP)

	eventID, receipt, err := h.ledger.CreateEvent(c.Request.Context(), req.MetadataCID, req.StartTime, req.EndTime, req.MintPOAP)
	if err != nil {
		log.Printf("Event creation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create event", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"event_id":         eventID,
		"transaction_hash": receipt.TxHash.Hex(),
	})
}
