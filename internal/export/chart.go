package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/lapweather/internal/models"
)

// Chart dimensions in pixels.
const (
	ChartWidth  = 960
	ChartHeight = 540
)

const (
	marginLeft   = 80
	marginRight  = 30
	marginTop    = 50
	marginBottom = 60
	pointRadius  = 4
)

var (
	background  = color.RGBA{250, 250, 250, 255}
	axisColor   = color.RGBA{60, 60, 60, 255}
	textColor   = color.RGBA{30, 30, 30, 255}
	unlabelled  = color.RGBA{170, 170, 170, 255}
	clusterHues = []color.RGBA{
		{31, 119, 180, 255},
		{255, 127, 14, 255},
		{44, 160, 44, 255},
		{214, 39, 40, 255},
		{148, 103, 189, 255},
	}
)

// WriteChart renders lap time against lap number as a PNG, coloured by
// k-means cluster. DBSCAN noise laps are drawn as rings.
func WriteChart(path, title string, rows []models.FeatureRow) error {
	data, err := RenderChart(title, rows)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	return nil
}

// RenderChart returns the encoded PNG. Rows without a lap time are skipped.
func RenderChart(title string, rows []models.FeatureRow) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, ChartWidth, ChartHeight))
	for y := 0; y < ChartHeight; y++ {
		for x := 0; x < ChartWidth; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	drawText(img, title, marginLeft, marginTop-20, textColor)

	x0, y0 := marginLeft, ChartHeight-marginBottom
	x1, y1 := ChartWidth-marginRight, marginTop
	hline(img, x0, x1, y0, axisColor)
	vline(img, x0, y1, y0, axisColor)
	drawText(img, "Lap", (x0+x1)/2, ChartHeight-15, textColor)
	drawText(img, "Lap time (s)", 8, marginTop-5, textColor)

	var plotted []models.FeatureRow
	for _, r := range rows {
		if r.LapTimeSeconds.Valid {
			plotted = append(plotted, r)
		}
	}
	if len(plotted) == 0 {
		drawText(img, "no lap times", (x0+x1)/2-40, (y0+y1)/2, textColor)
		return encodePNG(img)
	}

	minLap, maxLap := math.Inf(1), math.Inf(-1)
	minTime, maxTime := math.Inf(1), math.Inf(-1)
	for _, r := range plotted {
		lap := float64(r.LapNumber)
		minLap, maxLap = math.Min(minLap, lap), math.Max(maxLap, lap)
		minTime = math.Min(minTime, r.LapTimeSeconds.Float64)
		maxTime = math.Max(maxTime, r.LapTimeSeconds.Float64)
	}
	if maxLap == minLap {
		minLap, maxLap = minLap-1, maxLap+1
	}
	if maxTime == minTime {
		minTime, maxTime = minTime-1, maxTime+1
	}

	drawText(img, strconv.Itoa(int(minLap)), x0, y0+18, textColor)
	drawText(img, strconv.Itoa(int(maxLap)), x1-20, y0+18, textColor)
	drawText(img, strconv.FormatFloat(minTime, 'f', 1, 64), 8, y0, textColor)
	drawText(img, strconv.FormatFloat(maxTime, 'f', 1, 64), 8, y1+10, textColor)

	pad := pointRadius + 2
	scaleX := func(v float64) int {
		return x0 + pad + int((v-minLap)/(maxLap-minLap)*float64(x1-x0-2*pad))
	}
	scaleY := func(v float64) int {
		return y0 - pad - int((v-minTime)/(maxTime-minTime)*float64(y0-y1-2*pad))
	}

	for _, r := range plotted {
		col := unlabelled
		if r.KMeansCluster.Valid && r.KMeansCluster.Int64 >= 0 {
			col = clusterHues[int(r.KMeansCluster.Int64)%len(clusterHues)]
		}
		cx, cy := scaleX(float64(r.LapNumber)), scaleY(r.LapTimeSeconds.Float64)
		noise := r.DBSCANCluster.Valid && r.DBSCANCluster.Int64 < 0
		drawPoint(img, cx, cy, col, noise)
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

// drawPoint fills a disc, or only its rim when ring is set.
func drawPoint(img *image.RGBA, cx, cy int, col color.RGBA, ring bool) {
	r2 := pointRadius * pointRadius
	inner := (pointRadius - 2) * (pointRadius - 2)
	for dy := -pointRadius; dy <= pointRadius; dy++ {
		for dx := -pointRadius; dx <= pointRadius; dx++ {
			d := dx*dx + dy*dy
			if d > r2 || (ring && d < inner) {
				continue
			}
			img.SetRGBA(cx+dx, cy+dy, col)
		}
	}
}

func hline(img *image.RGBA, xa, xb, y int, col color.RGBA) {
	for x := xa; x <= xb; x++ {
		img.SetRGBA(x, y, col)
	}
}

func vline(img *image.RGBA, x, ya, yb int, col color.RGBA) {
	for y := ya; y <= yb; y++ {
		img.SetRGBA(x, y, col)
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
