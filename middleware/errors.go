package middleware

import (
	"errors"

	"postboard/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorBody renders err as the JSON error payload and its HTTP status.
// Unexpected errors never leak their cause to the client.
func ErrorBody(err error) (int, gin.H) {
	kind := apperr.KindOf(err)
	body := gin.H{"code": kind, "error": "Internal server error"}

	var e *apperr.Error
	if errors.As(err, &e) {
		body["error"] = e.Message
		if e.Field != "" {
			body["field"] = e.Field
		}
		if e.Constraint != "" {
			body["constraint"] = e.Constraint
		}
	}
	return apperr.HTTPStatus(kind), body
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, body := ErrorBody(err)
	c.AbortWithStatusJSON(status, body)
}
