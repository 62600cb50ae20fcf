package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/unicode/norm"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/models"
)

const pdfName = "rapport-complet-predictions.pdf"

// A4 portrait layout in millimetres.
const (
	pageCenter = 105.0
	marginX    = 10.0
	pageTop    = 20.0
	pageLimit  = 270.0
	lineHeight = 7.0
	imageW     = 190.0
	imageH     = 100.0
	tableColW  = 45.0
	dateLayout = "02/01/2006 15:04"
)

var comparisonColumns = []string{"Date", "Prédiction", "2024", "2023"}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	y   float64
}

func (c *Composer) pdf(ctx context.Context, in Input) (*Artifact, error) {
	historical, seasonal, err := c.rasterize(ctx, in)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(in.GeneratedAt)
	pdf.SetModificationDate(in.GeneratedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Rapport de Prédictions", true)
	pdf.SetCreator("Mikana", true)

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	w.newPage()

	pdf.SetFont("Helvetica", "B", 20)
	w.centered("Rapport de Prédictions")
	pdf.SetFont("Helvetica", "", 10)
	w.centered("Généré le " + in.GeneratedAt.Format(dateLayout))
	w.y += 6

	pdf.SetFont("Helvetica", "", 14)
	w.line(marginX, "Établissement: "+orAll(in.Form.Establishment))
	w.line(marginX, "Type de Linge: "+orAll(in.Form.LinenType))
	w.y += 6

	if in.Stats != nil {
		w.heading("Statistiques du Modèle")
		pdf.SetFont("Helvetica", "", 12)
		for _, s := range charts.StatLines(in.Stats) {
			value := s.Value
			if s.Key == "trend_direction" {
				// No arrow glyphs in the core fonts.
				value = charts.TrendLabel(in.Stats.TrendDirection)
			}
			w.line(marginX+5, s.Label+": "+value)
		}
		w.y += 6
	}

	w.heading("Prédictions Actuelles")
	pdf.SetFont("Helvetica", "", 12)
	for _, p := range in.Predictions {
		w.line(marginX+5, p.Date+": "+charts.Kilograms(p.Value))
	}

	w.newPage()
	w.heading("Comparaison Historique")
	w.image("historical", historical)

	w.newPage()
	w.heading("Comparaison Détaillée")
	w.comparisonTable(in.Comparisons)

	w.newPage()
	w.heading("Tendances Saisonnières")
	w.image("seasonal", seasonal)

	w.newPage()
	w.heading("Historique des Prédictions")
	w.history(in)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Artifact{Name: pdfName, ContentType: "application/pdf", Data: buf.Bytes()}, nil
}

func (w *pdfWriter) newPage() {
	w.pdf.AddPage()
	w.y = pageTop
}

// ensure starts a new page when h more millimetres would not fit.
func (w *pdfWriter) ensure(h float64) {
	if w.y+h > pageLimit {
		w.newPage()
	}
}

func (w *pdfWriter) enc(s string) string {
	return w.tr(norm.NFC.String(s))
}

func (w *pdfWriter) line(x float64, s string) {
	w.ensure(lineHeight)
	w.pdf.Text(x, w.y, w.enc(s))
	w.y += lineHeight
}

func (w *pdfWriter) centered(s string) {
	w.ensure(lineHeight)
	t := w.enc(s)
	w.pdf.Text(pageCenter-w.pdf.GetStringWidth(t)/2, w.y, t)
	w.y += lineHeight + 3
}

func (w *pdfWriter) heading(s string) {
	w.ensure(lineHeight * 3)
	w.pdf.SetFont("Helvetica", "B", 16)
	w.line(marginX, s)
	w.y += 3
}

func (w *pdfWriter) image(name string, png []byte) {
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	w.pdf.ImageOptions(name, marginX, w.y, imageW, imageH, false, opts, 0, "")
	w.y += imageH + lineHeight
}

func (w *pdfWriter) comparisonTable(rows []models.HistoricalComparison) {
	header := func() {
		w.pdf.SetFont("Helvetica", "B", 11)
		w.tableRow(comparisonColumns)
		w.pdf.SetFont("Helvetica", "", 11)
	}
	header()
	for _, r := range rows {
		if w.y+lineHeight > pageLimit {
			w.newPage()
			header()
		}
		w.tableRow([]string{
			r.Date,
			charts.Number(r.Prediction, 2),
			charts.Number(r.Historical2024, 2),
			charts.Number(r.Historical2023, 2),
		})
	}
}

func (w *pdfWriter) tableRow(cells []string) {
	for i, c := range cells {
		w.pdf.SetXY(marginX+float64(i)*tableColW, w.y)
		w.pdf.CellFormat(tableColW, lineHeight, w.enc(c), "1", 0, "L", false, 0, "")
	}
	w.y += lineHeight
}

func (w *pdfWriter) history(in Input) {
	w.pdf.SetFont("Helvetica", "", 11)
	if len(in.History) == 0 {
		w.line(marginX, "Aucune prédiction enregistrée.")
		return
	}
	loc := in.GeneratedAt.Location()
	for _, h := range in.History {
		w.line(marginX, "Date: "+h.Timestamp.In(loc).Format(dateLayout))
		w.line(marginX, "Établissement: "+orAll(h.Establishment))
		w.line(marginX, "Type de Linge: "+orAll(h.LinenType))
		w.line(marginX, "Prédictions:")
		for _, p := range h.Predictions {
			w.line(marginX+5, p.Date+": "+charts.Kilograms(p.Value))
		}
		w.y += 5
	}
}
