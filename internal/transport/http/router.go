package http

import (
	"github.com/gin-gonic/gin"
	"github.com/socialstack/moderation-service/internal/classifier"
	"github.com/socialstack/moderation-service/internal/config"
	"github.com/socialstack/moderation-service/internal/moderation"
	"github.com/socialstack/moderation-service/internal/repo"
	"go.uber.org/zap"
)

func NewRouter(eng *moderation.Engine, cls *classifier.Client, rep repo.RepositoryInterface, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, eng, cls, rep)
	return r
}
