package handler

import (
	"imagepay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	// 支付平台异步通知（在 /api/v1 之外，路径和平台配置保持一致）
	r.GET("/notify", h.Notify)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/ledger", h.ListLedger)
		}

		consumption := api.Group("/consumption")
		{
			consumption.GET("/list", h.ListConsumption)
			consumption.GET("/stats", h.ConsumptionStats)
		}

		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/cancel", h.CancelOrder)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/balance/recharge", h.AdminRecharge)
			admin.POST("/balance/deduct", h.AdminDeduct)
			admin.GET("/ledger", h.AdminListLedger)
			admin.GET("/audit", h.AdminAuditLedger)
			admin.POST("/orders/sweep", h.AdminSweepOrders)
			admin.GET("/stats", h.AdminStats)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
