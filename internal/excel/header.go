package excel

import (
	"errors"
	"strings"

	"golang.org/x/text/width"
)

// 语义字段名，对应BOM表格中需要识别的列
const (
	FieldProductCode  = "productCode"
	FieldProductName  = "productName"
	FieldMaterialCode = "materialCode"
	FieldMaterialName = "materialName"
	FieldQuantity     = "quantity"
	FieldUnit         = "unit"
	FieldSpec         = "spec"
	FieldLevel        = "level"
)

// ErrUnrecognizedSchema 表头中找不到物料编码或用量列，整张表无法解析
var ErrUnrecognizedSchema = errors.New("unrecognized sheet schema: material code or quantity column not found")

// FieldMap 语义字段 → 列下标，未匹配到的字段为 -1
type FieldMap map[string]int

// Col 返回字段对应的列下标，未解析到返回 -1
func (m FieldMap) Col(field string) int {
	if idx, ok := m[field]; ok {
		return idx
	}
	return -1
}

// Has 字段是否解析到了列
func (m FieldMap) Has(field string) bool {
	return m.Col(field) >= 0
}

// fieldAliases ERP导出的表头五花八门，按可靠性排序的别名表。
// 匹配按子串进行，靠前的别名优先。
var fieldAliases = map[string][]string{
	FieldProductCode:  {"产品代码", "产品编码", "成品代码", "成品编码", "母件代码", "母件编码", "productcode", "product_code"},
	FieldProductName:  {"产品名称", "成品名称", "母件名称", "productname", "product_name"},
	FieldMaterialCode: {"子件代码", "子件编码", "物料编码", "物料代码", "材料编码", "materialcode", "material_code", "料号", "sku"},
	FieldMaterialName: {"子件名称", "物料名称", "材料名称", "品名", "materialname", "material_name"},
	FieldQuantity:     {"基本用量", "用量", "数量", "quantity", "qty"},
	FieldUnit:         {"计量单位", "单位", "unit"},
	FieldSpec:         {"规格型号", "规格", "spec"},
	FieldLevel:        {"层级", "阶层", "层次", "级别", "阶次", "level"},
}

// resolveOrder 固定的解析顺序，保证结果稳定
var resolveOrder = []string{
	FieldProductCode, FieldProductName,
	FieldMaterialCode, FieldMaterialName,
	FieldQuantity, FieldUnit, FieldSpec, FieldLevel,
}

// normalizeHeader 表头单元格归一化：去空白、转小写、全角折半角
func normalizeHeader(cell string) string {
	s := strings.TrimSpace(cell)
	s = width.Narrow.String(s)
	return strings.ToLower(s)
}

// ResolveHeaders 在原始表格中定位表头行，并把语义字段映射到列下标。
// 表头行取第一个出现物料编码别名的行（物料编码是ERP导出中最可靠的判别列），
// 找不到则默认第0行。物料编码或用量列缺失时返回 ErrUnrecognizedSchema。
func ResolveHeaders(grid [][]string) (int, FieldMap, error) {
	headerRow := 0
	codeAliases := fieldAliases[FieldMaterialCode]

scan:
	for r, row := range grid {
		for _, cell := range row {
			norm := normalizeHeader(cell)
			if norm == "" {
				continue
			}
			for _, alias := range codeAliases {
				if strings.Contains(norm, alias) {
					headerRow = r
					break scan
				}
			}
		}
	}

	fields := make(FieldMap, len(resolveOrder))
	var header []string
	if headerRow < len(grid) {
		header = grid[headerRow]
	}

	for _, field := range resolveOrder {
		fields[field] = -1
		for _, alias := range fieldAliases[field] {
			for c, cell := range header {
				if claimed(fields, c, field) {
					continue
				}
				norm := normalizeHeader(cell)
				if norm != "" && strings.Contains(norm, alias) {
					fields[field] = c
					break
				}
			}
			if fields[field] >= 0 {
				break
			}
		}
	}

	if !fields.Has(FieldMaterialCode) || !fields.Has(FieldQuantity) {
		return headerRow, fields, ErrUnrecognizedSchema
	}
	return headerRow, fields, nil
}

// claimed 列已被更靠前解析的字段占用（"产品代码"不应再被物料编码命中）
func claimed(fields FieldMap, col int, current string) bool {
	for _, field := range resolveOrder {
		if field == current {
			return false
		}
		if fields[field] == col {
			return true
		}
	}
	return false
}
