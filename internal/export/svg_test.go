package export

import (
	"strings"
	"testing"

	"github.com/san-kum/balancer/internal/analysis"
)

func TestPathSVG(t *testing.T) {
	pts := []analysis.Point{{X: 0, Y: -1}, {X: 1, Y: 1}, {X: 2, Y: 0}}
	svg := PathSVG(pts, 200, 100, "#00ff00")

	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Fatalf("not a complete document:\n%s", svg)
	}
	if !strings.Contains(svg, `stroke="#00ff00"`) {
		t.Error("missing stroke colour")
	}
	if got := strings.Count(svg, " L"); got != 2 {
		t.Errorf("segments = %d, want 2", got)
	}
	if !strings.Contains(svg, "M0.0,") {
		t.Error("path should start at the left edge")
	}
	if !strings.Contains(svg, "<line") {
		t.Error("zero line expected when y spans 0")
	}
}

func TestPathSVGNoZeroLine(t *testing.T) {
	svg := SeriesSVG([]float64{0, 1, 2}, []float64{5, 6, 7}, 100, 50, "red")
	if strings.Contains(svg, "<line") {
		t.Error("zero line drawn out of range")
	}
}

func TestPathSVGTooShort(t *testing.T) {
	if PathSVG([]analysis.Point{{X: 1, Y: 1}}, 100, 100, "red") != "" {
		t.Error("single point should render nothing")
	}
	if SeriesSVG(nil, nil, 100, 100, "red") != "" {
		t.Error("empty series should render nothing")
	}
}
