package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postboard/avatar"
	"postboard/config"
	"postboard/database"
	"postboard/fanout"
	"postboard/feed"
	"postboard/handlers"
	"postboard/identity"
	"postboard/notify"
	"postboard/ratelimit"
	"postboard/routes"
	"postboard/store"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting postboard...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// ===== MONGODB =====
	if err := database.ConnectMongo(cfg.MongoURI, cfg.MongoDatabase); err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer database.DisconnectMongo()

	st := store.NewMongo(database.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := st.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatal("Failed to create indexes: ", err)
	}
	cancel()

	// ===== RATE LIMITS =====
	var counters ratelimit.Store = ratelimit.NewMemoryStore(cfg.CacheCapacity)
	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis: ", err)
		}
		defer client.Close()
		counters = ratelimit.NewRedisStore(client, ratelimit.WithPrefix("postboard:"))
	} else {
		log.Println("[RateLimit] REDIS_URL not set, keeping counters in memory")
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestLimit = cfg.RateLimitRequests
	limits.RequestWindow = cfg.RateLimitWindow
	limits.Cooldown = cfg.RateLimitCooldown
	limits.FollowLimit = cfg.FollowLimit
	limiter := ratelimit.New(counters, limits)

	// ===== IDENTITY =====
	tokens := identity.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	credentials := identity.NewCredentialCache(tokens, cfg.CacheCapacity, cfg.CredentialTTL)
	provider := identity.NewProvider(st, tokens)

	// ===== AVATARS =====
	var blobs avatar.Blobs
	if cfg.CloudinaryURL != "" {
		cld, err := avatar.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			log.Fatal("Cloudinary configuration error: ", err)
		}
		blobs = cld
	} else {
		log.Println("[Avatar] CLOUDINARY_URL not set, keeping avatars in memory")
		blobs = avatar.NewMemory()
	}
	avatars := avatar.NewURLs(blobs, cfg.CacheCapacity, cfg.AvatarURLTTL)

	// ===== PUSH =====
	var notifier notify.Notifier = notify.Noop{}
	if cfg.PushEnabled() {
		notifier = notify.NewWebPush(st, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	} else {
		log.Println("[Push] VAPID keys not set, notifications disabled. Run cmd/vapidkeys to create them")
	}

	// ===== FEED =====
	resolver := fanout.NewResolver(st, avatars, fanout.Config{
		CommentsPerPost: cfg.CommentsPerPost,
		Concurrency:     cfg.FanoutWorkers,
		AuthorTTL:       cfg.AuthorTTL,
		LocationTTL:     cfg.LocationTTL,
		CacheCapacity:   cfg.CacheCapacity,
	})
	svc := feed.New(st, limiter, resolver, avatars, feed.DefaultConfig(), feed.WithNotifier(notifier))

	// ===== GIN MODE =====
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
		log.Println("Running in RELEASE mode")
	} else {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	}

	router := routes.SetupRouter(handlers.New(svc, provider, cfg.VAPIDPublicKey), routes.Options{
		Credentials: credentials,
		Throttle:    limiter,
		CORSOrigins: cfg.CORSOrigins,
	})

	// ===== SERVER =====
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: ", err)
		}
	}()

	// ===== GRACEFUL SHUTDOWN =====
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("Forced shutdown:", err)
	}

	log.Println("Server stopped gracefully")
}
