package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/roomchat/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	core.ErrCodeUnauthenticated:   http.StatusUnauthorized,
	core.ErrCodeInvalidCredential: http.StatusUnauthorized,
	core.ErrCodeUnknownUser:       http.StatusUnauthorized,
	core.ErrCodeRoomNotFound:      http.StatusNotFound,
	core.ErrCodeNotAMember:        http.StatusForbidden,
	core.ErrCodeAlreadyMember:     http.StatusConflict,
	core.ErrCodeBadRequest:        http.StatusBadRequest,
	core.ErrCodeConnectionClosed:  http.StatusGone,
	core.ErrCodeStorageFailure:    http.StatusInternalServerError,
}

func abortWithError(c *gin.Context, status int, ce *core.CoreError) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

// writeCoreError answers with the status matching err's code.
func writeCoreError(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	status, ok := statusByCode[ce.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: core.ErrCodeBadRequest})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeStorageFailure})
}
