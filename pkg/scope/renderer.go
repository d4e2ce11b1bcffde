package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/trace"
)

var (
	gridColor      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	valueColor     = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	averageColor   = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	bandColor      = color.RGBA{R: 100, G: 200, B: 255, A: 90}
	anomalyColor   = color.RGBA{R: 230, G: 40, B: 40, A: 255}
	episodeColor   = color.RGBA{R: 230, G: 40, B: 40, A: 50}
	episodeLabelFg = color.RGBA{R: 255, G: 120, B: 120, A: 255}
)

type scopeRenderer struct {
	scope *ScopeWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// plot maps data coordinates into the drawing area.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (p plot) px(t time.Time) float32 {
	span := p.xMax.Sub(p.xMin).Seconds()
	if span <= 0 {
		return p.x
	}
	return p.x + float32(t.Sub(p.xMin).Seconds()/span)*p.w
}

func (p plot) py(v float64) float32 {
	return p.y + p.h - float32((v-p.yMin)/(p.yMax-p.yMin))*p.h
}

func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.samples
	episodes := r.scope.episodes
	unit := r.scope.unit
	p := plot{yMin: r.scope.yMin, yMax: r.scope.yMax, xMin: r.scope.xMin, xMax: r.scope.xMax}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const marginLeft, marginRight, marginTop, marginBottom = 70, 20, 20, 40
	p.x, p.y = marginLeft, marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom

	r.objects = []fyne.CanvasObject{r.bg}
	r.drawEpisodes(p, episodes)
	r.drawGrid(p, unit)
	r.drawSeries(p, samples, func(s sample.Sample) float64 { return s.Average + s.Threshold }, bandColor, 1)
	r.drawSeries(p, samples, func(s sample.Sample) float64 { return s.Average - s.Threshold }, bandColor, 1)
	r.drawSeries(p, samples, func(s sample.Sample) float64 { return s.Average }, averageColor, 2)
	r.drawSeries(p, samples, func(s sample.Sample) float64 { return s.Value }, valueColor, 1.5)
	r.drawAnomalies(p, samples)
}

func (r *scopeRenderer) drawGrid(p plot, unit string) {
	const rows, cols = 8, 10

	for i := range rows + 1 {
		y := p.y + float32(i)*p.h/rows
		r.line(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), gridColor, 1)

		v := p.yMax - float64(i)*(p.yMax-p.yMin)/rows
		text := canvas.NewText(formatValue(v, unit), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	span := p.xMax.Sub(p.xMin)
	for i := range cols + 1 {
		x := p.x + float32(i)*p.w/cols
		r.line(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), gridColor, 1)

		text := canvas.NewText(formatTime(span*time.Duration(i)/cols), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

func (r *scopeRenderer) drawSeries(p plot, samples []sample.Sample, value func(sample.Sample) float64, c color.Color, width float32) {
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		r.line(
			fyne.NewPos(p.px(a.Timestamp), p.py(value(a))),
			fyne.NewPos(p.px(b.Timestamp), p.py(value(b))),
			c, width,
		)
	}
}

func (r *scopeRenderer) drawAnomalies(p plot, samples []sample.Sample) {
	const d = 5.0
	for _, s := range samples {
		if !s.Anomalous {
			continue
		}
		dot := canvas.NewCircle(anomalyColor)
		dot.Resize(fyne.NewSize(d, d))
		dot.Move(fyne.NewPos(p.px(s.Timestamp)-d/2, p.py(s.Value)-d/2))
		r.objects = append(r.objects, dot)
	}
}

// drawEpisodes shades each episode and labels it with its peak deviation.
func (r *scopeRenderer) drawEpisodes(p plot, episodes []trace.Episode) {
	for _, e := range episodes {
		x0, x1 := p.px(e.StartTime), p.px(e.EndTime)
		if x1-x0 < 2 {
			x1 = x0 + 2
		}

		rect := canvas.NewRectangle(episodeColor)
		rect.Move(fyne.NewPos(x0, p.y))
		rect.Resize(fyne.NewSize(x1-x0, p.h))
		r.objects = append(r.objects, rect)

		text := canvas.NewText(formatPercent(e.Peak), episodeLabelFg)
		text.TextSize = 11
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos((x0+x1)/2-20, p.y+2))
		r.objects = append(r.objects, text)
	}
}

func (r *scopeRenderer) line(a, b fyne.Position, c color.Color, width float32) {
	l := canvas.NewLine(c)
	l.Position1 = a
	l.Position2 = b
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *scopeRenderer) Destroy() {}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
