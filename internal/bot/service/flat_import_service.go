package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/entity"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/repository"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/excel"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/shared/catalog"
	"go.uber.org/zap"
)

// FlatImportService 平面表导入（供应商/物料）：没有层级关系，
// 逐行别名映射后直接POST，逐行记账。
type FlatImportService struct {
	runTracker
	client *catalog.Client
	logger *zap.Logger
}

// NewFlatImportService 创建平面表导入服务
func NewFlatImportService(client *catalog.Client, runs *repository.ImportRunRepository, archive *Archive, logger *zap.Logger) *FlatImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlatImportService{
		runTracker: runTracker{runs: runs, archive: archive, logger: logger},
		client:     client,
		logger:     logger,
	}
}

// ImportSuppliers 批量导入供应商。必填：供应商编码、名称。
func (s *FlatImportService) ImportSuppliers(ctx context.Context, filename string, data []byte, triggeredBy string) (*FlatImportSummary, error) {
	run := s.beginRun(ctx, entity.ImportTypeSuppliers, filename, triggeredBy, data)

	summary, err := s.importSuppliers(ctx, data)
	s.finishRun(ctx, run, summary, err)
	return summary, err
}

func (s *FlatImportService) importSuppliers(ctx context.Context, data []byte) (*FlatImportSummary, error) {
	header, rows, err := readFlatSheet(data)
	if err != nil {
		return nil, err
	}

	var candidates []excel.SupplierRow
	for _, row := range rows {
		candidate := excel.ParseSupplierRow(header, row)
		if candidate.SupplierCode != "" && candidate.Name != "" {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("未找到包含供应商编码与名称的有效行，请确认表头")
	}

	summary := &FlatImportSummary{Total: len(candidates)}
	for _, item := range candidates {
		payload := map[string]interface{}{
			"supplierCode":  item.SupplierCode,
			"name":          item.Name,
			"category":      item.Category,
			"productName":   item.ProductName,
			"unitPrice":     item.UnitPrice,
			"paymentMethod": item.PaymentMethod,
			"contactPerson": item.ContactPerson,
			"phone":         item.Phone,
			"email":         item.Email,
			"address":       item.Address,
			"onTimeRate":    item.OnTimeRate,
			"qualityRate":   item.QualityRate,
			"remark":        item.Remark,
			"status":        orDefault(item.Status, defaultStatus),
		}

		if _, err := s.client.Create(ctx, "suppliers", payload); err != nil {
			summary.Failed++
			summary.Messages = append(summary.Messages, fmt.Sprintf("❌ %s %s -> %v", item.SupplierCode, item.Name, err))
			continue
		}
		summary.Success++
		summary.Messages = append(summary.Messages, fmt.Sprintf("✅ %s %s", item.SupplierCode, item.Name))
	}

	return summary, nil
}

// ImportMaterials 批量导入物料。必填：物料编码、名称。
func (s *FlatImportService) ImportMaterials(ctx context.Context, filename string, data []byte, triggeredBy string) (*FlatImportSummary, error) {
	run := s.beginRun(ctx, entity.ImportTypeMaterials, filename, triggeredBy, data)

	summary, err := s.importMaterials(ctx, data)
	s.finishRun(ctx, run, summary, err)
	return summary, err
}

func (s *FlatImportService) importMaterials(ctx context.Context, data []byte) (*FlatImportSummary, error) {
	header, rows, err := readFlatSheet(data)
	if err != nil {
		return nil, err
	}

	var candidates []excel.MaterialRow
	for _, row := range rows {
		candidate := excel.ParseMaterialRow(header, row)
		if candidate.MaterialCode != "" && candidate.Name != "" {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("未找到包含物料编码与名称的有效行，请确认表头")
	}

	summary := &FlatImportSummary{Total: len(candidates)}
	for _, item := range candidates {
		payload := map[string]interface{}{
			"materialCode": item.MaterialCode,
			"name":         item.Name,
			"spec":         item.Spec,
			"unit":         orDefault(item.Unit, excel.DefaultUnit),
			"price":        item.Price,
			"safeStock":    item.SafeStock,
			"leadTime":     item.LeadTime,
			"buyer":        item.Buyer,
			"category":     item.Category,
			"status":       orDefault(item.Status, defaultStatus),
		}

		if _, err := s.client.Create(ctx, "materials", payload); err != nil {
			summary.Failed++
			summary.Messages = append(summary.Messages, fmt.Sprintf("❌ %s %s -> %v", item.MaterialCode, item.Name, err))
			continue
		}
		summary.Success++
		summary.Messages = append(summary.Messages, fmt.Sprintf("✅ %s %s", item.MaterialCode, item.Name))
	}

	return summary, nil
}

// readFlatSheet 平面表首行即表头
func readFlatSheet(data []byte) (header []string, rows [][]string, err error) {
	grid, err := excel.ReadGrid(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	if len(grid) < 2 {
		return nil, nil, excel.ErrEmptySheet
	}
	return grid[0], grid[1:], nil
}
