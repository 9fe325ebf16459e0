package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadGrid 读取工作簿首个工作表的全部单元格。
// 返回的二维表按行对齐，单元格统一成字符串，由上层做语义解析。
func ReadGrid(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}
