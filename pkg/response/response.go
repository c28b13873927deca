package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Envelope is the venue's failure shape. Successful payloads carry their own
// ok field.
type Envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StatusError is implemented by errors that know their HTTP status
type StatusError interface {
	error
	HTTPStatus() int
}

// Handle writes data on success and maps err to a status otherwise
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var se StatusError
	switch {
	case errors.As(err, &se):
		Fail(c, se.HTTPStatus(), se.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	c.JSON(status, data)
}

// Fail sends an ok=false envelope with the given status
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{OK: false, Error: message})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	Fail(c, http.StatusConflict, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	Fail(c, http.StatusTooManyRequests, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, message)
}
