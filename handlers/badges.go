package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"meetchain-backend/attendance"
	"meetchain-backend/indexer"
)

type BadgeHandler struct {
	scanner *indexer.Scanner
	manager *attendance.Manager
}

func NewBadgeHandler(scanner *indexer.Scanner, manager *attendance.Manager) *BadgeHandler {
	return &BadgeHandler{
		scanner: scanner,
		manager: manager,
	}
}

// GetBadges returns the claim-eligibility table for a user across every
// readable event on the ledger.
func (h *BadgeHandler) GetBadges(c *gin.Context) {
	userParam := c.Query("user")
	if userParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User address is required"})
		return
	}
	if !common.IsHexAddress(userParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user address"})
		return
	}

	claims, err := h.scanner.ScanClaims(c.Request.Context(), common.HexToAddress(userParam))
	if err != nil {
		log.Printf("Claim scan failed for %s: %v", userParam, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to scan claims", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claims": claims,
		"total":  len(claims),
	})
}

// ClaimBadge submits a badge claim for an event the user signed in to.
func (h *BadgeHandler) ClaimBadge(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	txHash, err := h.manager.ClaimBadge(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, attendance.ErrNotEligible) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Not eligible to claim this event"})
			return
		}
		log.Printf("Badge claim failed for event %d: %v", eventID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Badge claim failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Badge claimed successfully",
		"transaction_hash": txHash,
	})
}
