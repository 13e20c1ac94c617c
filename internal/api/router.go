// Package api is the HTTP surface of the gateway: session CRUD, QR pairing,
// message endpoints, the SSE event stream and webhook configuration.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/nicolasppejo/wagate/docs"
	"github.com/nicolasppejo/wagate/internal/config"
	"github.com/nicolasppejo/wagate/internal/session"
	"github.com/nicolasppejo/wagate/internal/webhook"
)

// Server bundles the handler dependencies.
type Server struct {
	mgr     *session.Manager
	hook    *webhook.Dispatcher
	cfg     *config.Config
	log     *zap.Logger
	fetch   *http.Client
	started time.Time
}

func New(mgr *session.Manager, hook *webhook.Dispatcher, cfg *config.Config, log *zap.Logger) *Server {
	return &Server{
		mgr:     mgr,
		hook:    hook,
		cfg:     cfg,
		log:     log,
		fetch:   &http.Client{Timeout: 30 * time.Second},
		started: time.Now(),
	}
}

// Router builds the gin engine with CORS for all origins and API key auth on
// the versioned group. The pairing page, health and swagger stay open.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"}
	r.Use(cors.New(corsCfg))

	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(s.cfg.APIKey))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.createSession)
			sessions.GET("", s.listSessions)
			sessions.GET("/:id", s.getSession)
			sessions.DELETE("/:id", s.deleteSession)
			sessions.POST("/:id/reconnect", s.reconnectSession)
			sessions.GET("/:id/qr", s.getQR)
			sessions.POST("/:id/pair-phone", s.pairPhone)
			sessions.GET("/:id/chats", s.listChats)
			sessions.GET("/:id/messages", s.listMessages)
			sessions.GET("/:id/contacts", s.listContacts)
			sessions.POST("/:id/send-message", s.sendMessage)
			sessions.POST("/:id/send-image", s.sendImage)
			sessions.GET("/:id/media/:media_id", s.getMedia)
			sessions.GET("/:id/events", s.streamEvents)
		}

		v1.GET("/webhook", s.getWebhook)
		v1.POST("/webhook", s.setWebhook)
		v1.POST("/webhook/test", s.testWebhook)
	}

	r.GET("/qr", s.qrPage)
	r.GET("/health", s.health)
	r.GET("/", s.root)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
