// Package imagegen rasterizes dashboard charts to PNG so they can be embedded
// in exported reports. Output is a pure function of the chart and options.
package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/mikana/dashboard/internal/charts"
)

// Default bitmap size. The 1.9 ratio matches the 190x100 mm slot of the PDF
// report.
const (
	DefaultWidth  = 950
	DefaultHeight = 500
)

const (
	marginLeft   = 80
	marginRight  = 24
	marginTop    = 56
	marginBottom = 76
	lineWidth    = 2.5
	dotRadius    = 3.5
	yTicks       = 4
)

var (
	fontTitle font.Face
	fontLabel font.Face
	fontOnce  sync.Once
	fontErr   error

	// opentype faces are not safe for concurrent use.
	drawMu sync.Mutex
)

func loadFonts() {
	fontOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}

		fontTitle, err = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    20,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
			return
		}

		fontLabel, err = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    13,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create label face: %w", err)
			return
		}
	})
}

// Options controls the bitmap size and theme.
type Options struct {
	Width  int
	Height int
	Dark   bool
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	return o
}

// RenderLineChart draws the visible series of chart and encodes it as PNG.
func RenderLineChart(chart charts.LineChart, opts Options) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}
	opts = opts.withDefaults()
	if opts.Width < marginLeft+marginRight+50 || opts.Height < marginTop+marginBottom+50 {
		return nil, fmt.Errorf("chart size %dx%d too small", opts.Width, opts.Height)
	}

	drawMu.Lock()
	img := drawChart(chart, opts)
	drawMu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

type plot struct {
	img              *image.RGBA
	left, top        int
	right, bottom    int
	minY, maxY, step float64
}

func (p plot) x(i, n int) float32 {
	if n <= 1 {
		return float32(p.left+p.right) / 2
	}
	return float32(p.left) + float32(i)*float32(p.right-p.left)/float32(n-1)
}

func (p plot) y(v float64) float32 {
	ratio := (v - p.minY) / (p.maxY - p.minY)
	return float32(p.bottom) - float32(ratio)*float32(p.bottom-p.top)
}

func drawChart(chart charts.LineChart, opts Options) *image.RGBA {
	pal := charts.ThemePalette(opts.Dark)
	text := charts.ParseHex(pal.Text)
	muted := charts.ParseHex(pal.TextMuted)
	grid := charts.ParseHex(pal.Grid)

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(charts.ParseHex(pal.Card)), image.Point{}, draw.Src)

	title := chart.Title
	if chart.Unit != "" {
		title += " (" + chart.Unit + ")"
	}
	drawText(img, title, marginLeft, 32, text, fontTitle)

	series := chart.Visible()
	if chart.Empty() || len(series) == 0 {
		msg := "Aucune donnée"
		w := font.MeasureString(fontLabel, msg).Round()
		drawText(img, msg, (opts.Width-w)/2, opts.Height/2, muted, fontLabel)
		return img
	}

	p := plot{
		img:    img,
		left:   marginLeft,
		top:    marginTop,
		right:  opts.Width - marginRight,
		bottom: opts.Height - marginBottom,
	}
	p.minY, p.maxY, p.step = yRange(series)

	// Horizontal grid with tick labels.
	decimals := 0
	if p.step < 1 {
		decimals = 2
	}
	for v := p.minY; v <= p.maxY+p.step/2; v += p.step {
		y := int(math.Round(float64(p.y(v))))
		fillRect(img, image.Rect(p.left, y, p.right, y+1), grid)
		label := charts.Number(v, decimals)
		w := font.MeasureString(fontLabel, label).Round()
		drawText(img, label, p.left-8-w, y+4, muted, fontLabel)
	}
	fillRect(img, image.Rect(p.left, p.top, p.left+1, p.bottom+1), muted)
	fillRect(img, image.Rect(p.left, p.bottom, p.right, p.bottom+1), muted)

	// X labels, thinned so they never overlap.
	n := len(chart.Labels)
	widest := 0
	for _, l := range chart.Labels {
		if w := font.MeasureString(fontLabel, l).Round(); w > widest {
			widest = w
		}
	}
	every := 1
	if slots := (p.right - p.left) / (widest + 12); slots > 0 && n > slots {
		every = (n + slots - 1) / slots
	}
	for i, l := range chart.Labels {
		if i%every != 0 {
			continue
		}
		x := int(math.Round(float64(p.x(i, n))))
		fillRect(img, image.Rect(x, p.bottom, x+1, p.bottom+5), muted)
		w := font.MeasureString(fontLabel, l).Round()
		drawText(img, l, x-w/2, p.bottom+20, muted, fontLabel)
	}

	for _, s := range series {
		drawSeries(p, s, n)
	}

	// Legend.
	lx := p.left
	ly := opts.Height - 22
	for _, s := range series {
		fillRect(img, image.Rect(lx, ly-10, lx+12, ly+2), s.Color)
		drawText(img, s.Name, lx+18, ly, text, fontLabel)
		lx += 18 + font.MeasureString(fontLabel, s.Name).Round() + 24
	}
	return img
}

func drawSeries(p plot, s charts.Series, n int) {
	src := image.NewUniform(s.Color)
	b := p.img.Bounds()

	xs := make([]float32, len(s.Points))
	ys := make([]float32, len(s.Points))
	for i, pt := range s.Points {
		xs[i] = p.x(i, n)
		ys[i] = p.y(pt.Value)
	}

	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for i := 1; i < len(xs); i++ {
		segment(z, xs[i-1], ys[i-1], xs[i], ys[i], lineWidth)
	}
	z.Draw(p.img, b, src, image.Point{})

	z.Reset(b.Dx(), b.Dy())
	for i := range xs {
		dot(z, xs[i], ys[i], dotRadius)
	}
	z.Draw(p.img, b, src, image.Point{})
}

// segment adds a w-wide quad from (x0,y0) to (x1,y1). All quads share the same
// winding so overlapping joints do not cancel out.
func segment(z *vector.Rasterizer, x0, y0, x1, y1, w float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*w/2, dx/l*w/2
	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
}

func dot(z *vector.Rasterizer, cx, cy, r float32) {
	const sides = 16
	z.MoveTo(cx+r, cy)
	for i := 1; i < sides; i++ {
		a := 2 * math.Pi * float64(i) / sides
		z.LineTo(cx+r*float32(math.Cos(a)), cy+r*float32(math.Sin(a)))
	}
	z.ClosePath()
}

// yRange picks a zero-based axis unless values go negative, rounded out to
// a readable step.
func yRange(series []charts.Series) (minY, maxY, step float64) {
	lo, hi := 0.0, math.Inf(-1)
	for _, s := range series {
		for _, pt := range s.Points {
			lo = math.Min(lo, pt.Value)
			hi = math.Max(hi, pt.Value)
		}
	}
	if math.IsInf(hi, -1) || hi <= lo {
		hi = lo + 1
	}
	step = niceStep((hi - lo) / yTicks)
	return math.Floor(lo/step) * step, math.Ceil(hi/step) * step, step
}

func niceStep(raw float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / exp; {
	case f <= 1:
		return exp
	case f <= 2:
		return 2 * exp
	case f <= 5:
		return 5 * exp
	}
	return 10 * exp
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

// drawText draws text with its baseline at y.
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
