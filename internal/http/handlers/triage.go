package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/http/response"
	"github.com/verdantcare/verdant-backend/internal/pkg/ctxutil"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/services"
)

type TriageHandler struct {
	log    *logger.Logger
	triage services.TriageService
	kiosk  services.KioskTokenService
}

func NewTriageHandler(log *logger.Logger, triage services.TriageService, kiosk services.KioskTokenService) *TriageHandler {
	return &TriageHandler{log: log.With("handler", "TriageHandler"), triage: triage, kiosk: kiosk}
}

type triagePatientRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	MRN       string `json:"mrn"`
	Insurer   string `json:"insurer"`
	DOB       string `json:"dob"`
}

func (h *TriageHandler) Turn(c *gin.Context) {
	var req struct {
		Message    string                   `json:"message"`
		History    []services.TriageMessage `json:"history"`
		Tone       string                   `json:"tone"`
		Fields     services.TriageFields    `json:"fields"`
		KioskToken string                   `json:"kiosk_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	// A presented kiosk token must verify even though the turn itself is
	// stateless; a forged token fails fast instead of at submit.
	if strings.TrimSpace(req.KioskToken) != "" {
		if _, err := h.kiosk.Parse(req.KioskToken); err != nil {
			response.RespondError(c, err)
			return
		}
	}

	result, err := h.triage.Turn(c.Request.Context(), services.TriageTurnInput{
		Message: req.Message,
		History: req.History,
		Fields:  req.Fields,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, result)
}

func (h *TriageHandler) Submit(c *gin.Context) {
	var req struct {
		Message    string                   `json:"message"`
		History    []services.TriageMessage `json:"history"`
		Fields     services.TriageFields    `json:"fields"`
		Patient    *triagePatientRequest    `json:"patient"`
		KioskToken string                   `json:"kiosk_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	input := services.TriageSubmitInput{
		Message: req.Message,
		History: req.History,
		Fields:  req.Fields,
		Patient: patientInput(req.Patient),
	}

	if strings.TrimSpace(req.KioskToken) != "" {
		orgID, err := h.kiosk.Parse(req.KioskToken)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		input.KioskOrg = orgID
	}
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
		input.UserID = rd.UserID
	}

	result, err := h.triage.Submit(c.Request.Context(), input)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, result)
}

func patientInput(req *triagePatientRequest) *services.TriagePatientInput {
	if req == nil {
		return nil
	}
	in := &services.TriagePatientInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
		MRN:       req.MRN,
		Insurer:   req.Insurer,
	}
	if req.DOB != "" {
		if dob, err := time.Parse("2006-01-02", req.DOB); err == nil {
			in.DOB = &dob
		}
	}
	return in
}
