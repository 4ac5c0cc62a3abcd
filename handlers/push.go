package handlers

import (
	"net/http"

	"postboard/middleware"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetVapidPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "VAPID public key not configured",
			"code":  "NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

func (h *Handlers) SubscribePush(c *gin.Context) {
	var req SubscribeRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub := webpush.Subscription{
		Endpoint: req.Endpoint,
		Keys:     webpush.Keys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
	}
	if err := h.feed.SubscribePush(ctx, middleware.Viewer(c), sub); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscribed to push notifications"})
}
