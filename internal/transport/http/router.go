package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/service"
)

// Services bundles everything the handlers need.
type Services struct {
	Accounts      *service.AccountService
	Wallets       *service.WalletService
	Subscriptions *service.SubscriptionService
	Reconciler    *service.Reconciler
}

func NewRouter(svcs Services, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svcs)
	return r
}
