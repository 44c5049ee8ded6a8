package handler

import (
	"errors"
	"net/http"

	"bugwars-sync/internal/middleware"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/store"
	"github.com/gin-gonic/gin"
)

// StateHandler exposes the authoritative player and inventory over REST,
// for tooling and for clients that are not connected.
type StateHandler struct {
	Store *store.Store
}

func (h *StateHandler) Player(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	c.JSON(http.StatusOK, h.Store.PlayerData(userID))
}

func (h *StateHandler) PutPlayer(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	var body model.PlayerData
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	stored, err := h.Store.PutPlayerData(userID, body)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *StateHandler) Inventory(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	c.JSON(http.StatusOK, h.Store.Inventory(userID))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrPlayerMismatch):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInsufficientQuantity), errors.Is(err, store.ErrInventoryFull):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
