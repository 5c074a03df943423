package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/panorama/internal/config"
)

const (
	clientTokenKey    = "ct"
	ClientTokenCtxKey = "client_token"
)

// Routes are the listener endpoints mounted by SetupRouter.
type Routes struct {
	Upgrade gin.HandlerFunc
	Health  gin.HandlerFunc
	Metrics http.Handler
}

// ClientTokenMiddleware tags every client with a stable token kept in the
// cookie session, so log lines of reconnecting clients can be correlated.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(ClientTokenCtxKey, token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, routes Routes) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		HttpOnly: true,
		Secure:   cfg.TLS.Enabled(),
	})
	r.Use(sessions.Sessions("PanoramaSessions", store))
	r.Use(ClientTokenMiddleware())

	if routes.Health != nil {
		r.GET("/healthz", routes.Health)
	}
	if routes.Metrics != nil {
		r.GET("/metrics", gin.WrapH(routes.Metrics))
	}
	r.GET(cfg.WSPath, routes.Upgrade)

	log.Info().Str("module", "adapters.http").Str("ws_path", cfg.WSPath).Msg("router setup")
	return r
}
