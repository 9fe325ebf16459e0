package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/service"
)

// ReportHandler 供应链报告处理器
type ReportHandler struct {
	svc *service.ReportService
}

func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Get 生成（或返回缓存的）供应链深度报告
// GET /api/v1/report?force=true 跳过缓存重新生成
func (h *ReportHandler) Get(c *gin.Context) {
	force := c.Query("force") == "true"
	report, err := h.svc.Generate(c.Request.Context(), force)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"report": report})
}

// Send 生成报告并按配置投递邮件
// POST /api/v1/report/send
func (h *ReportHandler) Send(c *gin.Context) {
	report, err := h.svc.GenerateAndSend(c.Request.Context(), true)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"report": report})
}
