package service

import (
	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/repository"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/config"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/shared/catalog"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	BOMImport  *BOMImportService
	FlatImport *FlatImportService
	Report     *ReportService
}

// NewServices 创建服务集合
func NewServices(
	client *catalog.Client,
	repos *repository.Repositories,
	rdb *redis.Client,
	minioClient *minio.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *Services {
	var runRepo *repository.ImportRunRepository
	if repos != nil {
		runRepo = repos.ImportRun
	}

	archive := NewArchive(minioClient, cfg.MinIO.Bucket)

	return &Services{
		BOMImport:  NewBOMImportService(client, runRepo, archive, logger),
		FlatImport: NewFlatImportService(client, runRepo, archive, logger),
		Report:     NewReportService(client, rdb, cfg, logger),
	}
}

// CategorySummary 单类实体的导入统计
type CategorySummary struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Messages  []string `json:"messages"`
}

func (c *CategorySummary) ok(msg string) {
	c.Attempted++
	c.Succeeded++
	c.Messages = append(c.Messages, "✅ "+msg)
}

func (c *CategorySummary) fail(msg string) {
	c.Attempted++
	c.Failed++
	c.Messages = append(c.Messages, "❌ "+msg)
}

// ImportSummary BOM导入汇总，交给上层渲染成用户可读的报告
type ImportSummary struct {
	Products  CategorySummary `json:"products"`
	Materials CategorySummary `json:"materials"`
	BOMWrites CategorySummary `json:"bom_writes"`
	// UnmatchedMaterials 产品编码 → 始终无法解析到id的物料编码
	UnmatchedMaterials map[string][]string `json:"unmatched_materials,omitempty"`
}

// FlatImportSummary 平面表导入汇总（供应商/物料）
type FlatImportSummary struct {
	Total    int      `json:"total"`
	Success  int      `json:"success"`
	Failed   int      `json:"failed"`
	Messages []string `json:"messages"`
}
