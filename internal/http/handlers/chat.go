package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/http/response"
	"github.com/verdantcare/verdant-backend/internal/pkg/ctxutil"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/services"
)

const maxUploadBytes = 10 << 20

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

func (h *ChatHandler) Send(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindAuth, "missing or invalid token", nil))
		return
	}

	input, err := parseSendRequest(c)
	if err != nil {
		var umt *unsupportedMediaType
		if errors.As(err, &umt) {
			response.RespondErrorStatus(c, http.StatusUnsupportedMediaType, umt.Error(), nil)
			return
		}
		response.RespondError(c, err)
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), rd.UserID, rd.SessionKey, *input)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, msg)
}

// parseSendRequest accepts the turn as JSON or multipart; anything else is
// an unsupported media type.
func parseSendRequest(c *gin.Context) (*services.SendInput, error) {
	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		return parseSendJSON(c)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		return parseSendMultipart(c)
	default:
		return nil, &unsupportedMediaType{contentType}
	}
}

type unsupportedMediaType struct{ contentType string }

func (e *unsupportedMediaType) Error() string {
	return "unsupported media type: " + e.contentType
}

type sendRequest struct {
	Message      string      `json:"message"`
	Tone         string      `json:"tone"`
	Lang         string      `json:"lang"`
	SessionID    json.Number `json:"session_id"`
	CareSetting  string      `json:"care_setting"`
	FaithSetting string      `json:"faith_setting"`
}

func (r sendRequest) toInput() (*services.SendInput, error) {
	input := &services.SendInput{
		Message:      r.Message,
		Tone:         r.Tone,
		Language:     r.Lang,
		CareSetting:  r.CareSetting,
		FaithSetting: r.FaithSetting,
	}
	if s := strings.TrimSpace(r.SessionID.String()); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, pkgerr.E(pkgerr.KindValidation, "session_id must be an integer", err)
		}
		input.SessionID = &id
	}
	return input, nil
}

func parseSendJSON(c *gin.Context) (*services.SendInput, error) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, pkgerr.E(pkgerr.KindValidation, "malformed request body", err)
	}
	input, err := req.toInput()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, pkgerr.E(pkgerr.KindValidation, "message or files required", nil)
	}
	return input, nil
}

func parseSendMultipart(c *gin.Context) (*services.SendInput, error) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, pkgerr.E(pkgerr.KindValidation, "malformed multipart body", err)
	}

	req := sendRequest{
		Message:      c.PostForm("message"),
		Tone:         c.PostForm("tone"),
		Lang:         c.PostForm("lang"),
		SessionID:    json.Number(strings.TrimSpace(c.PostForm("session_id"))),
		CareSetting:  c.PostForm("care_setting"),
		FaithSetting: c.PostForm("faith_setting"),
	}
	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	form := c.Request.MultipartForm
	if form != nil {
		for _, fh := range form.File["files[]"] {
			f, err := fh.Open()
			if err != nil {
				return nil, pkgerr.E(pkgerr.KindValidation, "unreadable file part", err)
			}
			data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
			f.Close()
			if err != nil {
				return nil, pkgerr.E(pkgerr.KindValidation, "unreadable file part", err)
			}
			input.Files = append(input.Files, services.UploadedFile{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	if strings.TrimSpace(input.Message) == "" && len(input.Files) == 0 {
		return nil, pkgerr.E(pkgerr.KindValidation, "message or files required", nil)
	}
	return input, nil
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindAuth, "missing or invalid token", nil))
		return
	}

	views, err := h.chat.ListSessions(c.Request.Context(), rd.UserID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, views)
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindAuth, "missing or invalid token", nil))
		return
	}

	var req struct {
		Title string `json:"title"`
		Tone  string `json:"tone"`
		Lang  string `json:"lang"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, pkgerr.E(pkgerr.KindValidation, "malformed request body", err))
		return
	}

	view, err := h.chat.CreateSession(c.Request.Context(), rd.UserID, rd.SessionKey, req.Title, req.Tone, req.Lang)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, view)
}

func (h *ChatHandler) ClearSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.SessionKey == "" {
		response.RespondOK(c, gin.H{"cleared": false})
		return
	}
	if err := h.chat.ClearSession(c.Request.Context(), rd.SessionKey); err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
