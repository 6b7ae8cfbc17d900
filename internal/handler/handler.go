package handler

import (
	"errors"
	"strconv"

	"imagepay/internal/config"
	"imagepay/internal/repository"
	"imagepay/internal/service"
	"imagepay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService *service.AccountService
	orderService   *service.OrderService
	notifyService  *service.NotifyService
	billingService *service.BillingService
	statsService   *service.StatsService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		accountService: service.NewAccountService(db, rdb),
		orderService:   service.NewOrderService(db, cfg),
		notifyService:  service.NewNotifyService(db, cfg),
		billingService: service.NewBillingService(db, cfg),
		statsService:   service.NewStatsService(db),
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func parsePage(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"balance": account.Balance,
	})
}

// ListLedger 用户流水（只含对用户可见的条目）
// GET /api/v1/account/ledger?user_id=xxx&page=1&page_size=10
func (h *Handler) ListLedger(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	entries, total, err := h.accountService.ListLedger(c.Request.Context(), userID, page, pageSize, true)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListConsumption 用户消费记录
// GET /api/v1/consumption/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListConsumption(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	logs, total, err := h.billingService.ListConsumption(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      logs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ConsumptionStats 用户消费统计
// GET /api/v1/consumption/stats?user_id=xxx
func (h *Handler) ConsumptionStats(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	stats, err := h.billingService.ConsumptionStats(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}

// ============================================================
// 充值订单相关接口
// ============================================================

// CreateOrderRequest 创建充值订单请求
type CreateOrderRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"` // 分
	PayChannel string `json:"pay_channel"`
}

// CreateOrder 创建充值订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.UserID, req.Amount, req.PayChannel)
	if err != nil {
		if errors.Is(err, service.ErrAmountOutOfRange) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"order_no":   order.OrderNo,
		"amount":     order.Amount,
		"status":     order.Status.String(),
		"expires_at": order.ExpiresAt,
	})
}

// ListOrders 用户充值记录
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize, true)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelOrder 取消待支付订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cancelled, err := h.orderService.CancelOrder(c.Request.Context(), req.OrderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			response.Error(c, response.CodeOrderNotFound, "订单不存在")
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	if !cancelled {
		// 已支付或已被取消，按无操作处理
		response.Error(c, response.CodeOrderFinalized, "订单已终态，无法取消")
		return
	}

	response.Success(c, gin.H{"message": "订单已取消"})
}

// ============================================================
// 管理后台接口（鉴权由外层网关完成，这里只管账）
// ============================================================

// AdjustBalanceRequest 人工调账请求
type AdjustBalanceRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"` // 分
	Remark        string `json:"remark" binding:"required"`
	Operator      string `json:"operator" binding:"required"`
	VisibleToUser bool   `json:"visible_to_user"`
}

// AdminRecharge 管理员人工充值
// POST /api/v1/admin/balance/recharge
func (h *Handler) AdminRecharge(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.accountService.ManualRecharge(c.Request.Context(),
		req.UserID, req.Amount, req.Remark, req.Operator, req.VisibleToUser)
	if err != nil {
		if errors.Is(err, service.ErrRemarkRequired) || errors.Is(err, service.ErrInvalidAmount) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// AdminDeduct 管理员人工扣款（允许负余额）
// POST /api/v1/admin/balance/deduct
func (h *Handler) AdminDeduct(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.accountService.ManualDeduct(c.Request.Context(),
		req.UserID, req.Amount, req.Remark, req.Operator, req.VisibleToUser)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(c, response.CodeAccountNotFound, "账户不存在")
			return
		}
		if errors.Is(err, service.ErrRemarkRequired) || errors.Is(err, service.ErrInvalidAmount) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// AdminListLedger 全量流水（含对用户隐藏的条目）
// GET /api/v1/admin/ledger?user_id=xxx&page=1&page_size=10
func (h *Handler) AdminListLedger(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	entries, total, err := h.accountService.ListLedger(c.Request.Context(), userID, page, pageSize, false)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AdminAuditLedger 流水对账：折叠流水和实时余额比对
// GET /api/v1/admin/audit?user_id=xxx
func (h *Handler) AdminAuditLedger(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	report, err := h.accountService.AuditLedger(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(c, response.CodeAccountNotFound, "账户不存在")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, report)
}

// AdminSweepOrders 手动触发过期订单清理
// POST /api/v1/admin/orders/sweep
func (h *Handler) AdminSweepOrders(c *gin.Context) {
	var req struct {
		MaxBatch int `json:"max_batch"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.MaxBatch <= 0 {
		req.MaxBatch = 100
	}

	cancelled, err := h.orderService.SweepExpired(c.Request.Context(), req.MaxBatch)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"cancelled": cancelled})
}

// AdminStats 管理后台总览
// GET /api/v1/admin/stats
func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.statsService.Overview(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}
