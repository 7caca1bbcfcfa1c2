package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/http/response"
	"github.com/verdantcare/verdant-backend/internal/pkg/ctxutil"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/services"
)

// PortalHandler serves the front-desk surface: the encounter queue and
// kiosk provisioning.
type PortalHandler struct {
	log        *logger.Logger
	encounters services.EncounterService
	kiosk      services.KioskTokenService
}

func NewPortalHandler(log *logger.Logger, encounters services.EncounterService, kiosk services.KioskTokenService) *PortalHandler {
	return &PortalHandler{
		log:        log.With("handler", "PortalHandler"),
		encounters: encounters,
		kiosk:      kiosk,
	}
}

func requestUser(c *gin.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, pkgerr.E(pkgerr.KindAuth, "missing or invalid token", nil)
	}
	return rd.UserID, nil
}

func (h *PortalHandler) ListEncounters(c *gin.Context) {
	userID, err := requestUser(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	encounters, err := h.encounters.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, encounters)
}

func (h *PortalHandler) MoveEncounter(c *gin.Context) {
	userID, err := requestUser(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "invalid encounter id", err))
		return
	}

	var req struct {
		Status   string `json:"status"`
		Override bool   `json:"override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	encounter, err := h.encounters.Move(c.Request.Context(), userID, encounterID, req.Status, req.Override)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, encounter)
}

func (h *PortalHandler) MintKioskToken(c *gin.Context) {
	userID, err := requestUser(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	orgID, err := h.encounters.MemberOrg(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	token, expiresAt, err := h.kiosk.Mint(orgID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"kiosk_token": token,
		"org_id":      orgID,
		"expires_at":  expiresAt,
	})
}
