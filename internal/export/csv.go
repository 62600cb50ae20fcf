package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

const csvName = "predictions.csv"

func predictionsCSV(in Input) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(predictionHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, p := range in.Predictions {
		row := predictionRow(p)
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = text(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row %s: %w", p.Date, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return &Artifact{Name: csvName, ContentType: "text/csv; charset=utf-8", Data: buf.Bytes()}, nil
}
