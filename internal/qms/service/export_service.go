package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ExportService 分析结果导出
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

var paretoExportHeaders = []string{"排名", "缺陷代码", "缺陷名称", "类别", "数量", "占比(%)", "累计占比(%)"}

func paretoRows(report *ParetoReport) [][]interface{} {
	rows := make([][]interface{}, 0, len(report.Items))
	for i, it := range report.Items {
		rows = append(rows, []interface{}{
			i + 1, it.Code, report.CodeNames[it.Code], it.Category, it.Qty, it.PctOfTotal, it.CumulativePct,
		})
	}
	return rows
}

// ParetoFilename 导出文件名
func ParetoFilename(ext string) string {
	return fmt.Sprintf("Pareto_%s.%s", time.Now().Format("20060102_150405"), ext)
}

// ParetoXLSX 导出柏拉图为xlsx
func (s *ExportService) ParetoXLSX(report *ParetoReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Pareto"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range paretoExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	rows := paretoRows(report)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	// 汇总行
	summaryRow := len(rows) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "合计")
	f.SetCellValue(sheet, fmt.Sprintf("E%d", summaryRow), report.TotalQty)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("G%d", summaryRow), summaryStyle)

	colWidths := []float64{6, 12, 20, 12, 10, 10, 12}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	// 类别汇总
	catSheet := "Categories"
	if _, err := f.NewSheet(catSheet); err != nil {
		return nil, err
	}
	f.SetCellValue(catSheet, "A1", "类别")
	f.SetCellValue(catSheet, "B1", "数量")
	f.SetCellStyle(catSheet, "A1", "B1", boldStyle)
	for i, c := range report.Categories {
		f.SetCellValue(catSheet, fmt.Sprintf("A%d", i+2), c.Category)
		f.SetCellValue(catSheet, fmt.Sprintf("B%d", i+2), c.Qty)
	}
	return f, nil
}

// ParetoCSV 导出柏拉图为CSV，gbk 为 true 时按GBK编码输出
func (s *ExportService) ParetoCSV(w io.Writer, report *ParetoReport, gbk bool) error {
	var closer io.Closer
	if gbk {
		tw := transform.NewWriter(w, simplifiedchinese.GBK.NewEncoder())
		w, closer = tw, tw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(paretoExportHeaders); err != nil {
		return err
	}
	for i, it := range report.Items {
		cw.Write([]string{
			strconv.Itoa(i + 1), it.Code, report.CodeNames[it.Code], it.Category,
			strconv.Itoa(it.Qty),
			strconv.FormatFloat(it.PctOfTotal, 'f', 2, 64),
			strconv.FormatFloat(it.CumulativePct, 'f', 2, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}
