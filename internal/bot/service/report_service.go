package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/genai"
	"gopkg.in/gomail.v2"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/config"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/shared/catalog"
)

const reportCacheKey = "bot:report:latest"

// Alert 库存/交期预警条目
type Alert struct {
	ID          interface{} `json:"id"`
	Level       string      `json:"level"`
	SKU         string      `json:"sku"`
	Name        string      `json:"name"`
	Buyer       string      `json:"buyer"`
	WarningType string      `json:"warningType"`
	Message     string      `json:"message"`
	CreatedAt   string      `json:"createdAt"`
}

// DashboardSummary 全量数据集规模概览
type DashboardSummary struct {
	Orders         int `json:"orders"`
	OrderLines     int `json:"orderLines"`
	Materials      int `json:"materials"`
	PurchaseOrders int `json:"purchaseOrders"`
	Suppliers      int `json:"suppliers"`
	Products       int `json:"products"`
	BOM            int `json:"bom"`
}

// LLMProvider 报告生成能力的抽象，便于测试替换
type LLMProvider interface {
	GenerateReport(ctx context.Context, prompt string) (string, error)
}

type geminiProvider struct {
	apiKey string
	model  string
}

func (p *geminiProvider) GenerateReport(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.3)),
	}

	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	return strings.TrimSpace(result.Text()), nil
}

// ReportService 聚合预警与全量业务数据，生成供应链深度报告
type ReportService struct {
	client *catalog.Client
	rdb    *redis.Client
	llm    LLMProvider
	cfg    *config.Config
	logger *zap.Logger
}

func NewReportService(client *catalog.Client, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	var llm LLMProvider
	if cfg.Report.GeminiAPIKey != "" {
		llm = &geminiProvider{apiKey: cfg.Report.GeminiAPIKey, model: cfg.Report.Model}
	}
	return &ReportService{
		client: client,
		rdb:    rdb,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
	}
}

// Generate 生成报告，命中缓存时直接返回。force 为 true 跳过缓存
func (s *ReportService) Generate(ctx context.Context, force bool) (string, error) {
	if !force && s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, reportCacheKey).Result(); err == nil && cached != "" {
			return cached, nil
		}
	}

	alerts := s.fetchAlerts(ctx)
	raw, summary := s.fetchDashboard(ctx)

	report := s.compose(ctx, alerts, raw, summary)

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, reportCacheKey, report, s.cfg.Report.CacheTTL).Err(); err != nil {
			s.logger.Warn("缓存报告失败", zap.Error(err))
		}
	}

	return report, nil
}

// GenerateAndSend 生成报告并按配置投递邮件
func (s *ReportService) GenerateAndSend(ctx context.Context, force bool) (string, error) {
	report, err := s.Generate(ctx, force)
	if err != nil {
		return "", err
	}
	if err := s.sendEmail("每周供应链深度报告", report); err != nil {
		s.logger.Error("发送邮件失败", zap.Error(err))
	}
	return report, nil
}

// fetchAlerts 拉取预警列表，失败时返回空列表不中断报告
func (s *ReportService) fetchAlerts(ctx context.Context) []Alert {
	var body struct {
		Success bool `json:"success"`
		Data    []struct {
			ID           interface{} `json:"id"`
			Level        string      `json:"level"`
			MaterialCode string      `json:"materialCode"`
			MaterialName string      `json:"materialName"`
			Buyer        string      `json:"buyer"`
			WarningType  string      `json:"warningType"`
			Message      string      `json:"message"`
			CreatedAt    string      `json:"createdAt"`
		} `json:"data"`
	}

	if err := s.client.GetJSON(ctx, s.cfg.Catalog.WarningsPath, &body); err != nil {
		s.logger.Error("获取库存预警失败", zap.Error(err))
		return nil
	}
	if !body.Success {
		s.logger.Warn("预警接口返回结构异常")
		return nil
	}

	alerts := make([]Alert, 0, len(body.Data))
	for _, item := range body.Data {
		alerts = append(alerts, Alert{
			ID:          item.ID,
			Level:       item.Level,
			SKU:         item.MaterialCode,
			Name:        item.MaterialName,
			Buyer:       item.Buyer,
			WarningType: item.WarningType,
			Message:     item.Message,
			CreatedAt:   item.CreatedAt,
		})
	}
	return alerts
}

// fetchDashboard 拉取仪表板全量数据并统计各数据集规模
func (s *ReportService) fetchDashboard(ctx context.Context) (map[string]interface{}, *DashboardSummary) {
	var raw map[string]interface{}
	if err := s.client.GetJSON(ctx, s.cfg.Catalog.DataPath, &raw); err != nil {
		s.logger.Error("获取全量数据失败", zap.Error(err))
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	count := func(key string) int {
		if arr, ok := raw[key].([]interface{}); ok {
			return len(arr)
		}
		return 0
	}

	summary := &DashboardSummary{
		Orders:         count("orders"),
		OrderLines:     count("orderLines"),
		Materials:      count("mats"),
		PurchaseOrders: count("pos"),
		Suppliers:      count("suppliers"),
		Products:       count("products"),
		BOM:            count("bom"),
	}
	return raw, summary
}

func (s *ReportService) compose(ctx context.Context, alerts []Alert, raw map[string]interface{}, summary *DashboardSummary) string {
	if s.llm == nil {
		return fallbackReport(alerts, summary)
	}

	report, err := s.llm.GenerateReport(ctx, buildReportPrompt(alerts, raw))
	if err != nil {
		s.logger.Error("生成 LLM 报告失败", zap.Error(err))
		lines := []string{"生成智能报告失败，以下为原始预警数据："}
		for _, a := range alerts {
			lines = append(lines, alertLine(a))
		}
		return strings.Join(lines, "\n")
	}
	return report
}

func buildReportPrompt(alerts []Alert, raw map[string]interface{}) string {
	if alerts == nil {
		alerts = []Alert{}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	rawJSON, _ := json.MarshalIndent(raw, "", "  ")
	alertsJSON, _ := json.MarshalIndent(alerts, "", "  ")

	return fmt.Sprintf(`你是供应链计划员。下面是从系统抓取到的全站业务数据（JSON 对象）：
%s

这里是预警列表（JSON 数组，可能为空表示没有预警）：
%s

请输出一份“全站深度解读报告”，要求：
1. 总体概览：订单、物料、采购单、供应商等规模；按预警 level 给出数量。
2. 库存与采购风险：指出库存低于安全库存、在途量不足、BOM 中关键物料风险，并关联对应采购单或供应商。
3. 订单交付风险：关注交期临近且存在物料风险或供应商延迟的订单。
4. 供应商表现：结合 on-time/quality 指标，标出主要供应商及潜在隐患。
5. BOM/产品：如数据包含 BOM，指出关键物料依赖，提示缺料对产品的影响。
6. 预警解读：逐条说明高/中风险预警的业务影响。
7. 行动建议：给出 3-5 条可以直接执行的动作（补货、催交、切换供应商、沟通客户等）。
8. 口径：如数据缺失请说明，不要编造。
9. 输出格式（非常重要）：纯中文文本，不要使用 Markdown 语法、表格或反引号；可用数字或短横线列点；控制在 3400 字以内。`,
		rawJSON, alertsJSON)
}

// fallbackReport 未配置 LLM 时的简易版报告
func fallbackReport(alerts []Alert, summary *DashboardSummary) string {
	lines := []string{"【库存/交期预警（简易版，无 LLM）】"}

	if summary != nil {
		lines = append(lines,
			fmt.Sprintf("- 订单 %d 条 / 行项目 %d 条 / 采购单 %d 条", summary.Orders, summary.OrderLines, summary.PurchaseOrders),
			fmt.Sprintf("- 物料 %d 个 / 供应商关系 %d 条 / 产品 %d 个 / BOM 行 %d 条", summary.Materials, summary.Suppliers, summary.Products, summary.BOM),
		)
	} else {
		lines = append(lines, "- 未能获取全量数据接口，已仅使用预警信息。")
	}

	if len(alerts) > 0 {
		for _, a := range alerts {
			lines = append(lines, alertLine(a))
		}
	} else {
		lines = append(lines, "- 当前没有检测到任何库存或交期预警。")
	}

	lines = append(lines, "（提示：配置 GEMINI_API_KEY 后，将自动生成更智能的全站深度解读。）")
	return strings.Join(lines, "\n")
}

func alertLine(a Alert) string {
	return fmt.Sprintf("- [%s] %s | %s | 类型：%s | 采购：%s | 提示：%s",
		a.Level, a.SKU, a.Name, a.WarningType, a.Buyer, a.Message)
}

// sendEmail 按配置投递报告邮件，未配置收件人时跳过
func (s *ReportService) sendEmail(subject, body string) error {
	email := s.cfg.Email
	if email.To == "" {
		s.logger.Info("未配置 EMAIL_TO，跳过发送邮件")
		return nil
	}

	from := email.From
	if from == "" {
		from = email.User
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", from, "Supply Bot")
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(email.Host, email.Port, email.User, email.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send report email: %w", err)
	}

	s.logger.Info("已发送邮件报告", zap.String("to", email.To))
	return nil
}
