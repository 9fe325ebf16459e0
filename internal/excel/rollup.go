package excel

import (
	"errors"
	"strconv"
	"strings"
)

// ErrEmptySheet 表头之后没有任何数据行
var ErrEmptySheet = errors.New("sheet has no data rows")

// DefaultUnit 单位列缺失时的默认计量单位
const DefaultUnit = "PCS"

// Identity 顶层产品标识，通常由文件名/表名推导，作为无1阶行表格的兜底
type Identity struct {
	Code string
	Name string
}

// BOMLine 单行解析结果。Quantity 已经沿树路径累乘，表示相对一台顶层产品的总用量，
// 而不是相对直接父件的单层用量。
type BOMLine struct {
	ProductCode  string
	ProductName  string
	MaterialCode string
	MaterialName string
	Spec         string
	Quantity     float64
	Unit         string
}

// LevelStrategy 行层级推断策略。ERP导出对"阶次"的标注方式并不统一，
// 把启发式隔离在这里，便于单独替换和测试。
type LevelStrategy interface {
	// Level 返回该行的层级（1=顶层产品）。第二个返回值为 false 表示行内无任何层级信号。
	Level(row []string, fields FieldMap) (int, bool)
}

// HeuristicLevelStrategy 默认策略：优先读显式层级列；没有层级列时扫描行首
// 前几个单元格，取第一个能解析成整数的值（很多导出把阶次放在无表头的首列）。
type HeuristicLevelStrategy struct {
	// ScanCols 无层级列时扫描的行首单元格数，零值按3处理
	ScanCols int
}

func (s HeuristicLevelStrategy) Level(row []string, fields FieldMap) (int, bool) {
	if c := fields.Col(FieldLevel); c >= 0 && c < len(row) {
		if lv, ok := parseLevel(row[c]); ok {
			return lv, true
		}
	}

	scan := s.ScanCols
	if scan <= 0 {
		scan = 3
	}
	for c := 0; c < scan && c < len(row); c++ {
		// 已映射到其他字段的列不是层级信号（避免把用量当层级）
		if columnMapped(fields, c) {
			continue
		}
		if lv, ok := parseLevel(row[c]); ok {
			return lv, true
		}
	}
	return 0, false
}

func columnMapped(fields FieldMap, col int) bool {
	for _, c := range fields {
		if c == col {
			return true
		}
	}
	return false
}

// parseLevel 层级单元格可能是 "2"、"2.0"、"-2" 甚至 "2-"，尽力提取正整数
func parseLevel(cell string) (int, bool) {
	s := strings.TrimSpace(cell)
	s = strings.Trim(s, "-")
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) && int(f) > 0 {
		return int(f), true
	}
	return 0, false
}

// NormalizeCode 编码归一化：去空白，去掉表格数字强转产生的尾部".0"
func NormalizeCode(cell string) string {
	s := strings.TrimSpace(cell)
	s = strings.TrimSuffix(s, ".0")
	return s
}

// parseQuantity 用量解析失败按0处理（按非贡献行跳过，不报错）
func parseQuantity(cell string) float64 {
	s := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// cellAt 越界安全取值
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// ParseRows 按行重建多层BOM的父子用量关系，产出相对顶层产品的展平行。
//
// levelTotals 维护各层级装配件相对一台顶层产品的累计用量（1阶恒为1）。
// 处理某一层级的行时，更深层级的旧条目全部失效——树已经回溯，新的兄弟
// 分支开始；父层级缺失时按1兜底，容忍断档的层级编号。
func ParseRows(grid [][]string, headerRow int, fields FieldMap, fallback Identity, strategy LevelStrategy) ([]BOMLine, error) {
	if strategy == nil {
		strategy = HeuristicLevelStrategy{}
	}
	if headerRow+1 >= len(grid) {
		return nil, ErrEmptySheet
	}

	current := fallback
	levelTotals := map[int]float64{1: 1}

	var lines []BOMLine
	for _, row := range grid[headerRow+1:] {
		if blankRow(row) {
			continue
		}

		levelNum, ok := strategy.Level(row, fields)
		if !ok {
			// 无任何层级信号时按顶层产品的直接子件处理，宁可错放层级也不中断导入
			levelNum = 2
		}

		if levelNum == 1 {
			// 1阶行重新声明顶层产品，本身不是BOM组成行
			code := NormalizeCode(cellAt(row, fields.Col(FieldProductCode)))
			name := cellAt(row, fields.Col(FieldProductName))
			if code == "" {
				code = NormalizeCode(cellAt(row, fields.Col(FieldMaterialCode)))
			}
			if name == "" {
				name = cellAt(row, fields.Col(FieldMaterialName))
			}
			if code != "" {
				current = Identity{Code: code, Name: name}
			} else if name != "" {
				current.Name = name
			}
			levelTotals = map[int]float64{1: 1}
			continue
		}

		code := NormalizeCode(cellAt(row, fields.Col(FieldMaterialCode)))
		qtyPerParent := parseQuantity(cellAt(row, fields.Col(FieldQuantity)))
		if code == "" || qtyPerParent <= 0 {
			// 小计行、空行、0用量行都不是错误，直接跳过
			continue
		}

		parentLevel := levelNum - 1
		if parentLevel < 1 {
			parentLevel = 1
		}
		parentTotal, has := levelTotals[parentLevel]
		if !has {
			parentTotal = 1
		}
		totalQty := qtyPerParent * parentTotal

		for depth := range levelTotals {
			if depth >= levelNum {
				delete(levelTotals, depth)
			}
		}
		levelTotals[levelNum] = totalQty

		unit := cellAt(row, fields.Col(FieldUnit))
		if unit == "" {
			unit = DefaultUnit
		}

		lines = append(lines, BOMLine{
			ProductCode:  current.Code,
			ProductName:  current.Name,
			MaterialCode: code,
			MaterialName: cellAt(row, fields.Col(FieldMaterialName)),
			Spec:         cellAt(row, fields.Col(FieldSpec)),
			Quantity:     totalQty,
			Unit:         unit,
		})
	}

	return lines, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
