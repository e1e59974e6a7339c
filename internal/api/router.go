package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/biosync/internal/api/handlers"
	"github.com/your-org/biosync/internal/api/ws"
	"github.com/your-org/biosync/internal/auth"
	"github.com/your-org/biosync/internal/enroll"
	"github.com/your-org/biosync/internal/queue"
	"github.com/your-org/biosync/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	Archive  *storage.TemplateArchive
	Producer *queue.Producer
	Hub      *ws.Hub
	Sessions *enroll.Manager
	Registry handlers.MappingLister
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Archive, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Fingerprint record store
	fpH := handlers.NewFingerprintHandler(cfg.DB, cfg.Archive)
	v1.POST("/fingerprints", fpH.Save)
	v1.GET("/fingerprints", fpH.Get)
	v1.DELETE("/fingerprints", fpH.Delete)
	v1.GET("/fingerprints/template", fpH.Template)

	// Enrollment sessions
	enrollH := handlers.NewEnrollHandler(cfg.Sessions)
	v1.POST("/enroll/:userId/capture", enrollH.Capture)
	v1.POST("/enroll/:userId/commit", enrollH.Commit)
	v1.POST("/enroll/:userId/delete", enrollH.Delete)
	v1.POST("/enroll/:userId/reset", enrollH.Reset)
	v1.GET("/enroll/:userId/session", enrollH.Session)

	// Device mappings
	mappingH := handlers.NewMappingHandler(cfg.Registry)
	v1.GET("/devices/:deviceId/mappings", mappingH.List)

	return r
}
