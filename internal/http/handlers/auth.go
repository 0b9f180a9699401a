package handlers

import (
	"net/http"

	"github.com/geocoder89/jobqueue/internal/auth"
	"github.com/geocoder89/jobqueue/internal/security"
	"github.com/gin-gonic/gin"
)

// AuthHandler issues the single operator's bearer token. Trimmed from
// the teacher's sign-up/login/refresh/logout quartet down to one
// login route — there is no registration flow for a single seeded
// operator credential.
type AuthHandler struct {
	username     string
	passwordHash string
	jwt          *auth.Manager
}

func NewAuthHandler(username, passwordHash string, jwt *auth.Manager) *AuthHandler {
	return &AuthHandler{username: username, passwordHash: passwordHash, jwt: jwt}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if req.Username != h.username || security.CheckPassword(h.passwordHash, req.Password) != nil {
		RespondError(ctx, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(h.username)
	if err != nil {
		RespondInternal(ctx, "failed to issue access token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"accessToken": token})
}
