package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/http/response"
	"github.com/verdantcare/verdant-backend/internal/pkg/ctxutil"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/services"
)

type AuthHandler struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthHandler(log *logger.Logger, auth services.AuthService) *AuthHandler {
	return &AuthHandler{log: log.With("handler", "AuthHandler"), auth: auth}
}

type authEnvelope struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Language  string    `json:"language"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func envelope(result *services.AuthResult) authEnvelope {
	return authEnvelope{
		ID:        result.User.ID.String(),
		Email:     result.User.Email,
		FirstName: result.User.FirstName,
		LastName:  result.User.LastName,
		Language:  result.User.Language,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Language  string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	result, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Language:  req.Language,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, envelope(result))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, envelope(result))
}

func (h *AuthHandler) RotateToken(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindAuth, "missing or invalid token", nil))
		return
	}

	result, err := h.auth.RotateToken(c.Request.Context(), rd.UserID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, envelope(result))
}
