package routes

import (
	"net/http"
	"strings"
	"time"

	"postboard/handlers"
	"postboard/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	Credentials middleware.Credentials
	Throttle    middleware.Throttler
	CORSOrigins []string
}

func SetupRouter(h *handlers.Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/api/health", handlers.Health)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(opts.Throttle))

	// Public routes (no auth required)
	api.POST("/signup", h.Signup)
	api.POST("/login", h.Login)
	api.GET("/vapid-public-key", h.GetVapidPublicKey)

	// Credential-aware routes. Each operation decides whether an anonymous
	// or unverified caller may proceed.
	viewer := api.Group("")
	viewer.Use(middleware.Authenticate(opts.Credentials))

	viewer.GET("/explore", h.GetExplore)
	viewer.GET("/feed", h.GetFeed)
	viewer.GET("/search", h.Search)
	viewer.GET("/profile/:member", h.GetProfile)
	viewer.GET("/members/:member/posts/:post", h.GetPost)

	// Account
	viewer.GET("/me", h.GetMyAccount)
	viewer.PUT("/me", h.UpdateMyAccount)
	viewer.POST("/me/avatar", h.UploadAvatar)

	// Posts
	viewer.POST("/posts", h.CreatePost)
	viewer.DELETE("/posts/:post", h.DeletePost)
	viewer.POST("/posts/:post/pin", h.PinPost)
	viewer.DELETE("/posts/:post/pin", h.UnpinPost)
	viewer.POST("/posts/:post/reactions", h.React)
	viewer.GET("/posts/:post/comments", h.GetComments)
	viewer.POST("/posts/:post/comments", h.Comment)

	// Follows
	viewer.POST("/follows/:member", h.Follow)
	viewer.DELETE("/follows/:member", h.Unfollow)

	// Push subscriptions
	viewer.POST("/subscribe", h.SubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"code":  "NOT_FOUND",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.String(http.StatusNotFound, "Not Found")
	})

	return router
}
