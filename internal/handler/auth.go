package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/store"
	"github.com/gin-gonic/gin"
)

var errUserMismatch = errors.New("refresh token belongs to another user")

type AuthHandler struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
}

type loginBody struct {
	auth.LoginProof
	Username string `json:"username"`
}

// Login exchanges a signed challenge for a session. The response is the
// same SessionUpdate the client receives over OnSessionUpdate.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := body.Verify(); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UnixMilli()
	account, created := h.Store.GetOrCreateAccount(body.PublicKey, body.UserID(), body.Username, now)
	update, err := IssueSession(account.ID, account.Username, h.TokenConfig)
	if err != nil {
		slog.Error("token creation failed", "user_id", account.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	slog.Info("login", "user_id", account.ID, "created", created)
	c.JSON(http.StatusOK, update)
}

// Refresh renews a session from its refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	update, err := RenewSession(req, h.TokenConfig)
	if err != nil {
		slog.Warn("refresh rejected", "user_id", req.UserID, "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, update)
}

// IssueSession mints a fresh token pair for userID.
func IssueSession(userID, username string, cfg auth.TokenConfig) (model.SessionUpdate, error) {
	pair, err := auth.IssuePair(userID, username, cfg)
	if err != nil {
		return model.SessionUpdate{}, err
	}
	return model.SessionUpdate{
		UserID:       userID,
		Username:     username,
		DisplayName:  username,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// RenewSession verifies req's refresh token and issues a new pair. The
// refresh token rotates along with the access token.
func RenewSession(req model.TokenRefreshRequest, cfg auth.TokenConfig) (model.SessionUpdate, error) {
	claims, err := auth.VerifyToken(req.RefreshToken, auth.KindRefresh, cfg)
	if err != nil {
		return model.SessionUpdate{}, err
	}
	if req.UserID != "" && req.UserID != claims.UserID {
		return model.SessionUpdate{}, fmt.Errorf("%w: %s", errUserMismatch, req.UserID)
	}
	return IssueSession(claims.UserID, claims.Username, cfg)
}
