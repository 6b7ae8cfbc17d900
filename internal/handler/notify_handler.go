package handler

import (
	"github.com/gin-gonic/gin"
)

// Notify 支付平台异步通知
// GET /notify?pid=..&trade_no=..&out_trade_no=..&type=..&money=..&trade_status=..&sign=..
//
// 【关键点】应答必须是纯文本 success / fail，支付平台就认这两个字面值：
// 收到 success 停止重试，其他任何应答（包括 JSON）都会触发重试
func (h *Handler) Notify(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if err := h.notifyService.HandleNotify(c.Request.Context(), params); err != nil {
		c.String(200, "fail")
		return
	}

	c.String(200, "success")
}
