package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"postboard/apperr"
	"postboard/feed"
	"postboard/identity"
	"postboard/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const requestTimeout = 10 * time.Second

type Handlers struct {
	feed           *feed.Service
	auth           *identity.Provider
	vapidPublicKey string
}

func New(svc *feed.Service, auth *identity.Provider, vapidPublicKey string) *Handlers {
	return &Handlers{feed: svc, auth: auth, vapidPublicKey: vapidPublicKey}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func fail(c *gin.Context, err error) {
	status, body := middleware.ErrorBody(err)
	c.JSON(status, body)
}

// bindJSON decodes the request body into req, answering 400 itself when the
// body is malformed or fails its binding tags.
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		fail(c, apperr.Validation(fe.Field(), fe.Tag(), "[User Input] "+fe.Field()+" is invalid"))
		return false
	}
	fail(c, apperr.Validation("body", "json", "[User Input] Request body must be valid JSON"))
	return false
}

// queryLimit reads ?limit=, where an absent value means the default.
func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("limit", "int", "[User Input] limit must be a number")
	}
	return n, nil
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "postboard API is running",
		"time":    time.Now().Unix(),
	})
}
