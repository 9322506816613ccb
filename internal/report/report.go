package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"gomhangpro/backend/internal/domain"
)

// ShiftReportCSV renders the daily reconciliation as key-per-line CSV.
func ShiftReportCSV(report domain.ShiftReport) string {
	lines := []string{
		"shift_id,staff,counter,status,tien_giao_ca_ban_dau,tien_giao_ca,tong_tien_hang_da_tra,quy_con_lai,order_count",
	}
	for _, row := range report.Rows {
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%s,%d,%d,%d,%d,%d",
			row.ShiftID, csvEscape(row.StaffName), csvEscape(row.CounterName),
			row.Status, row.InitialFloat, row.CurrentFloat, row.SpentTotal,
			row.RemainingFund, row.OrderCount))
	}
	lines = append(lines, fmt.Sprintf("TOTAL,,,,,%d,%d,%d,",
		report.TotalFloat, report.TotalSpent, report.TotalRemained))
	return strings.Join(lines, "\n") + "\n"
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// ShiftReportXLSX renders the daily reconciliation as a spreadsheet.
func ShiftReportXLSX(report domain.ShiftReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "BaoCaoCa"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Mã ca", "Nhân viên", "Sạp", "Trạng thái",
		"Tiền giao ca ban đầu", "Tiền giao ca", "Tiền hàng đã trả",
		"Quỹ còn lại", "Số đơn"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for rowIdx, row := range report.Rows {
		values := []any{row.ShiftID, row.StaffName, row.CounterName, row.Status,
			row.InitialFloat, row.CurrentFloat, row.SpentTotal,
			row.RemainingFund, row.OrderCount}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	totalRow := len(report.Rows) + 2
	totals := map[int]any{
		1: "TỔNG",
		6: report.TotalFloat,
		7: report.TotalSpent,
		8: report.TotalRemained,
	}
	for col, v := range totals {
		cell, err := excelize.CoordinatesToCellName(col, totalRow)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return nil, err
		}
	}
	return f, nil
}
