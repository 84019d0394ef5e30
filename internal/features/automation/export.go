package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var runExportColumns = []string{"fired_at", "automation_id", "client_id", "status", "reason", "actions_fired"}

// ExportRuns renders the filtered run history as an xlsx workbook for
// download from the runs dashboard.
func (s *AutomationServiceImpl) ExportRuns(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]byte, string, error) {
	runs, err := s.runs.ListByOrg(ctx, orgID, filter)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Automation Runs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range runExportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, run := range runs {
		actions := make([]string, 0, len(run.ActionsFired))
		for _, a := range run.ActionsFired {
			actions = append(actions, string(a.Type))
		}
		values := []interface{}{
			run.FiredAt.Format("2006-01-02 15:04:05"),
			run.AutomationID.Hex(),
			run.ClientID.Hex(),
			string(run.Status),
			run.Reason,
			joinNonEmpty(actions),
		}
		for colIdx, val := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, val)
		}
	}

	for i := range runExportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 22)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("automation_runs_%s.xlsx", time.Now().Format("20060102_150405"))
	return buffer.Bytes(), filename, nil
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
