package response

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
)

// ErrorBody is the single error shape every endpoint returns. Detail is
// only populated when DEBUG_ERRORS=true.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondError maps a classified error to its status and JSON body.
func RespondError(c *gin.Context, err error) {
	status := pkgerr.HTTPStatus(err)
	RespondErrorStatus(c, status, publicMessage(err, status), err)
}

func RespondErrorStatus(c *gin.Context, status int, message string, err error) {
	body := ErrorBody{Error: message}
	if os.Getenv("DEBUG_ERRORS") == "true" && err != nil {
		body.Detail = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// publicMessage keeps internal error text off the wire for 5xx responses;
// classified errors carry messages written to be shown.
func publicMessage(err error, status int) string {
	var e *pkgerr.Error
	if pkgerr.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	if err != nil {
		return err.Error()
	}
	return http.StatusText(status)
}
