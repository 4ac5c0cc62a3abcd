package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"postboard/apperr"
	"postboard/feed"
	"postboard/middleware"

	"github.com/gin-gonic/gin"
)

const (
	maxAvatarSize = 10 << 20
	uploadTimeout = 30 * time.Second
)

type UpdateAccountRequest struct {
	DisplayName string `json:"displayName"`
	DateOfBirth string `json:"dateOfBirth"`
	Location    string `json:"location"`
	Tagline     string `json:"tagline"`
	Email       string `json:"email"`
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("dateOfBirth", "date", "[User Input] dateOfBirth must be a date like 2006-01-02")
	}
	return t, nil
}

func (h *Handlers) GetMyAccount(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	account, err := h.feed.Account(ctx, middleware.Viewer(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handlers) UpdateMyAccount(c *gin.Context) {
	var req UpdateAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	account, err := h.feed.UpdateAccount(ctx, middleware.Viewer(c), feed.AccountInput{
		DisplayName: req.DisplayName,
		DateOfBirth: dob,
		Location:    req.Location,
		Tagline:     req.Tagline,
		Email:       req.Email,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handlers) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarSize)
	if err := c.Request.ParseMultipartForm(maxAvatarSize); err != nil {
		fail(c, apperr.Validation("avatar", "multipart", "[User Input] Failed to parse form data"))
		return
	}

	file, _, err := c.Request.FormFile("avatar")
	if err != nil {
		fail(c, apperr.Validation("avatar", "required", "[User Input] No avatar file provided"))
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), uploadTimeout)
	defer cancel()

	url, err := h.feed.UpdateAvatar(ctx, middleware.Viewer(c), file)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handlers) GetProfile(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	profile, err := h.feed.Profile(ctx, middleware.Viewer(c), c.Param("member"), c.Query("before"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handlers) Follow(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := h.feed.Follow(ctx, middleware.Viewer(c), c.Param("member"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Followed", "followId": id.Hex()})
}

func (h *Handlers) Unfollow(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.feed.Unfollow(ctx, middleware.Viewer(c), c.Param("member")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed"})
}
