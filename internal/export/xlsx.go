package export

import (
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"
)

const xlsxName = "rapport-predictions.xlsx"

const (
	sheetPredictions = "Predictions"
	sheetComparisons = "HistoricalComparisons"
	sheetStatistics  = "Statistics"
)

func workbook(in Input) (*Artifact, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("export: close workbook: %v", err)
		}
	}()

	stamp := in.GeneratedAt.UTC().Format(time.RFC3339)
	if err := f.SetDocProps(&excelize.DocProperties{
		Created:        stamp,
		Modified:       stamp,
		Creator:        "Mikana",
		LastModifiedBy: "Mikana",
		Title:          "Rapport de Prédictions",
		Language:       "fr-FR",
	}); err != nil {
		return nil, fmt.Errorf("doc props: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetPredictions); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]any, 0, len(in.Predictions))
	for _, p := range in.Predictions {
		rows = append(rows, predictionRow(p))
	}
	if err := writeSheet(f, sheetPredictions, predictionHeader, rows); err != nil {
		return nil, err
	}

	rows = make([][]any, 0, len(in.Comparisons))
	for _, c := range in.Comparisons {
		rows = append(rows, comparisonRow(c))
	}
	if _, err := f.NewSheet(sheetComparisons); err != nil {
		return nil, fmt.Errorf("new sheet %s: %w", sheetComparisons, err)
	}
	if err := writeSheet(f, sheetComparisons, comparisonHeader, rows); err != nil {
		return nil, err
	}

	if in.Stats != nil {
		if _, err := f.NewSheet(sheetStatistics); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", sheetStatistics, err)
		}
		if err := writeSheet(f, sheetStatistics, statsHeader, [][]any{statsRow(*in.Stats)}); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Artifact{
		Name:        xlsxName,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        buf.Bytes(),
	}, nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
