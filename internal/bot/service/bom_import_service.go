package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/entity"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/repository"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/excel"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/shared/catalog"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// 远端实体的建档默认值（源表缺失时补齐必填字段）
const (
	defaultStatus   = "active"
	defaultCategory = "自动导入"
)

// resolveOutcome 单个实体get-or-create的结果。显式的结果类型让
// 逐实体的错误记账可以直接测试，而不是埋在嵌套的错误处理里。
type resolveOutcome int

const (
	outcomeFound resolveOutcome = iota
	outcomeCreated
	outcomeConflictResolved
	outcomeFailed
)

// BOMImportService 多层BOM导入：解析→去重→对账远端目录
type BOMImportService struct {
	runTracker
	client *catalog.Client
	logger *zap.Logger

	strategy excel.LevelStrategy
}

// NewBOMImportService 创建BOM导入服务
func NewBOMImportService(client *catalog.Client, runs *repository.ImportRunRepository, archive *Archive, logger *zap.Logger) *BOMImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BOMImportService{
		runTracker: runTracker{runs: runs, archive: archive, logger: logger},
		client:     client,
		logger:     logger,
		strategy:   excel.HeuristicLevelStrategy{},
	}
}

// Import 执行一次完整的BOM导入。
// 表结构错误（表头无法识别、无数据行）立即返回；实体级失败只累积进汇总。
func (s *BOMImportService) Import(ctx context.Context, filename string, data []byte, triggeredBy string) (*ImportSummary, error) {
	run := s.beginRun(ctx, entity.ImportTypeBOM, filename, triggeredBy, data)

	summary, err := s.doImport(ctx, filename, data)
	s.finishRun(ctx, run, summary, err)
	return summary, err
}

func (s *BOMImportService) doImport(ctx context.Context, filename string, data []byte) (*ImportSummary, error) {
	grid, err := excel.ReadGrid(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	headerRow, fields, err := excel.ResolveHeaders(grid)
	if err != nil {
		return nil, err
	}

	lines, err := excel.ParseRows(grid, headerRow, fields, identityFromFilename(filename), s.strategy)
	if err != nil {
		return nil, err
	}

	products, materials, aggregated := excel.Dedupe(lines)
	s.logger.Info("BOM表解析完成",
		zap.String("file", filename),
		zap.Int("rows", len(lines)),
		zap.Int("products", len(products)),
		zap.Int("materials", len(materials)),
		zap.Int("bom_lines", len(aggregated)),
	)

	return s.reconcile(ctx, products, materials, aggregated), nil
}

// identityFromFilename 从文件名推导兜底的顶层产品标识（无1阶行的单品表很常见）
func identityFromFilename(filename string) excel.Identity {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	// "7203-20 BOM" 这类命名里去掉尾部的BOM字样
	for _, suffix := range []string{"BOM", "bom", "Bom"} {
		base = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(base), suffix))
	}
	code := excel.NormalizeCode(base)
	return excel.Identity{Code: code, Name: base}
}

// reconcile 对账远端目录：逐实体get-or-create，兜底回填物料映射，
// 最后按产品整体替换BOM。全程顺序执行——远端没有事务性多写，
// 产品、物料必须先于BOM行落地，避免悬空引用。
func (s *BOMImportService) reconcile(ctx context.Context, products []excel.Product, materials []excel.Material, aggregated []excel.AggregatedLine) *ImportSummary {
	summary := &ImportSummary{}

	materialInfo := make(map[string]excel.Material, len(materials))
	for _, m := range materials {
		materialInfo[m.Code] = m
	}

	productIDs := make(map[string]string, len(products))
	for _, p := range products {
		id, outcome, err := s.getOrCreateProduct(ctx, p)
		if outcome == outcomeFailed {
			summary.Products.fail(fmt.Sprintf("%s %s -> %v", p.Code, p.Name, err))
			continue
		}
		productIDs[p.Code] = id
		summary.Products.ok(fmt.Sprintf("%s %s", p.Code, p.Name))
	}

	materialIDs := make(map[string]string, len(materials))
	for _, m := range materials {
		id, outcome, err := s.getOrCreateMaterial(ctx, m)
		if outcome == outcomeFailed {
			summary.Materials.fail(fmt.Sprintf("%s %s -> %v", m.Code, m.Name, err))
			continue
		}
		materialIDs[m.Code] = id
		summary.Materials.ok(fmt.Sprintf("%s %s", m.Code, m.Name))
	}

	// 兜底：全量拉一遍物料目录回填映射。初查和BOM行解析之间，
	// 别的进程可能已经建好了我们没查到的物料。
	s.backfillMaterialIDs(ctx, materialIDs)

	// 按产品分组聚合行
	linesByProduct := make(map[string][]excel.AggregatedLine)
	var productOrder []string
	for _, line := range aggregated {
		if _, ok := linesByProduct[line.ProductCode]; !ok {
			productOrder = append(productOrder, line.ProductCode)
		}
		linesByProduct[line.ProductCode] = append(linesByProduct[line.ProductCode], line)
	}

	for _, productCode := range productOrder {
		productID, ok := productIDs[productCode]
		if !ok || productID == "" {
			summary.BOMWrites.fail(fmt.Sprintf("%s -> 产品未建档，跳过BOM写入", productCode))
			continue
		}

		var items []catalog.BOMItem
		for _, line := range linesByProduct[productCode] {
			if line.Quantity <= 0 {
				continue
			}

			materialID := materialIDs[line.MaterialCode]
			if materialID == "" {
				// 最后一次定向补救，再失败才记为未匹配
				m, ok := materialInfo[line.MaterialCode]
				if !ok {
					m = excel.Material{Code: line.MaterialCode, Unit: excel.DefaultUnit}
				}
				id, outcome, _ := s.getOrCreateMaterial(ctx, m)
				if outcome != outcomeFailed && id != "" {
					materialIDs[line.MaterialCode] = id
					materialID = id
				}
			}
			if materialID == "" {
				if summary.UnmatchedMaterials == nil {
					summary.UnmatchedMaterials = make(map[string][]string)
				}
				summary.UnmatchedMaterials[productCode] = append(summary.UnmatchedMaterials[productCode], line.MaterialCode)
				continue
			}

			items = append(items, catalog.BOMItem{MaterialID: materialID, Quantity: line.Quantity})
		}

		if len(items) == 0 {
			// 不发空替换——没有有效行就保持远端现状
			continue
		}

		if err := s.client.ReplaceBOM(ctx, productID, items); err != nil {
			summary.BOMWrites.fail(fmt.Sprintf("%s -> %v", productCode, err))
			continue
		}
		summary.BOMWrites.ok(fmt.Sprintf("%s 写入%d行", productCode, len(items)))
	}

	return summary
}

func (s *BOMImportService) getOrCreateProduct(ctx context.Context, p excel.Product) (string, resolveOutcome, error) {
	name := p.Name
	if name == "" {
		name = p.Code
	}
	payload := map[string]interface{}{
		"productCode": p.Code,
		"name":        name,
		"unit":        orDefault(p.Unit, excel.DefaultUnit),
		"status":      defaultStatus,
		"category":    defaultCategory,
	}
	return s.getOrCreate(ctx, "products", p.Code, payload, productCodeFields)
}

func (s *BOMImportService) getOrCreateMaterial(ctx context.Context, m excel.Material) (string, resolveOutcome, error) {
	name := m.Name
	if name == "" {
		name = m.Code
	}
	payload := map[string]interface{}{
		"materialCode": m.Code,
		"name":         name,
		"spec":         m.Spec,
		"unit":         orDefault(m.Unit, excel.DefaultUnit),
		"status":       defaultStatus,
		"category":     defaultCategory,
	}
	return s.getOrCreate(ctx, "materials", m.Code, payload, materialCodeFields)
}

var (
	productCodeFields  = []string{"productCode", "product_code", "code"}
	materialCodeFields = []string{"materialCode", "material_code", "code", "sku"}
)

// getOrCreate 按编码查找或创建实体，容忍并发创建冲突：
// 创建撞到重复编码时回查一次复用既有id，仍查不到才算实体级失败。
// 401已由客户端作废凭证，这里照常记失败、继续后面的实体。
func (s *BOMImportService) getOrCreate(ctx context.Context, entityType, code string, payload map[string]interface{}, codeFields []string) (string, resolveOutcome, error) {
	if id, err := s.lookup(ctx, entityType, code, codeFields); err == nil && id != "" {
		return id, outcomeFound, nil
	}

	id, err := s.client.Create(ctx, entityType, payload)
	if err == nil {
		return id, outcomeCreated, nil
	}

	if errors.Is(err, catalog.ErrConflict) {
		// 别的导入抢先建好了同编码记录，回查复用
		if id, lookupErr := s.lookup(ctx, entityType, code, codeFields); lookupErr == nil && id != "" {
			return id, outcomeConflictResolved, nil
		}
		return "", outcomeFailed, fmt.Errorf("conflict on %s %s but re-query found nothing: %w", entityType, code, err)
	}

	return "", outcomeFailed, err
}

// lookup 关键字查询后按归一化编码精确比对，防止子串误命中
func (s *BOMImportService) lookup(ctx context.Context, entityType, code string, codeFields []string) (string, error) {
	records, err := s.client.List(ctx, entityType, code, 1, 20)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if excel.NormalizeCode(rec.StringField(codeFields...)) == code && rec.ID != "" {
			return rec.ID, nil
		}
	}
	return "", nil
}

// backfillMaterialIDs 全量物料目录回填。失败只告警——这是防御性兜底，
// 缺了它还有逐行的定向重试。
func (s *BOMImportService) backfillMaterialIDs(ctx context.Context, materialIDs map[string]string) {
	records, err := s.client.ListAllMaterials(ctx)
	if err != nil {
		s.logger.Warn("全量物料目录拉取失败，跳过回填", zap.Error(err))
	}
	for _, rec := range records {
		code := excel.NormalizeCode(rec.StringField(materialCodeFields...))
		if code == "" || rec.ID == "" {
			continue
		}
		if _, ok := materialIDs[code]; !ok {
			materialIDs[code] = rec.ID
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

