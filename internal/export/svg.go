// Package export renders recorded traces as standalone SVG images.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/balancer/internal/analysis"
)

const background = "#0a0a0a"

// PathSVG draws points as a single polyline scaled to fill width by height,
// with a dim line at y = 0 when it is in range.
func PathSVG(points []analysis.Point, width, height int, stroke string) string {
	if len(points) < 2 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	px := func(x float64) float64 { return (x - minX) / rangeX * float64(width) }
	py := func(y float64) float64 { return float64(height) - (y-minY)/rangeY*float64(height) }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)

	if minY <= 0 && maxY >= 0 {
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#444" stroke-width="1"/>
`, py(0), width, py(0))
	}

	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, stroke)
	for i, p := range points {
		if i > 0 {
			sb.WriteString(" L")
		}
		fmt.Fprintf(&sb, "%.1f,%.1f", px(p.X), py(p.Y))
	}
	sb.WriteString("\"/>\n</svg>\n")
	return sb.String()
}

// SeriesSVG plots values against times.
func SeriesSVG(times, values []float64, width, height int, stroke string) string {
	return PathSVG(analysis.NewPhasePortrait(times, values).Points, width, height, stroke)
}
