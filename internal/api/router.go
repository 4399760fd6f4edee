package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"smart-attendance-backend/config"
	"smart-attendance-backend/internal/mw"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, sessions SessionController, index *recognize.Index, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, sessions, index, webpushOptions, cfg.Recognition.TemplateSizes)

	limit := rate.Limit(cfg.Server.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Limit(10)
	}
	rateLimiter := mw.RateLimiter(limit, 5, cfg.Server.RequestIPHeader)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", caching, handler.GetStatus)

		api.GET("/records", caching, handler.GetRecords)
		api.GET("/records/today", caching, handler.GetTodayRecords)
		api.GET("/records/recent", caching, handler.GetRecentRecords)

		api.GET("/students", handler.GetStudents)
		api.POST("/students", handler.RegisterStudent)
		api.GET("/students/:id", handler.GetStudent)
		api.DELETE("/students/:id", handler.DeleteStudent)

		api.GET("/session", handler.GetSession)
		api.POST("/session/start", handler.StartSession)
		api.POST("/session/stop", handler.StopSession)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
