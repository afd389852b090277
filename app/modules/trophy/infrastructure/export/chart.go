package trophyexport

import (
	"bytes"
	"slices"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	chartBackground = drawing.ColorFromHex("1e1f22")
	chartBar        = drawing.ColorFromHex("f0b232")
	chartText       = drawing.ColorFromHex("dbdee1")
)

// LeaderboardChartPNG renders players as a bar chart of current scores, in
// the order given.
func LeaderboardChartPNG(players []trophydomain.Player) ([]byte, error) {
	if len(players) == 0 {
		return renderNoDataPlaceholder()
	}

	bars := make([]chart.Value, 0, len(players))
	top := 0
	for _, p := range players {
		label := p.DisplayName
		if label == "" {
			label = string(p.Tag)
		}
		bars = append(bars, chart.Value{
			Label: label,
			Value: float64(p.CurrentScore),
			Style: chart.Style{FillColor: chartBar, StrokeColor: chartBar},
		})
		top = max(top, p.CurrentScore)
	}

	graph := chart.BarChart{
		Title:      "Trophy Leaderboard",
		TitleStyle: chart.Style{FontColor: chartText},
		Width:      max(400, 80*len(bars)),
		Height:     400,
		BarWidth:   48,
		BarSpacing: 24,
		Background: chart.Style{FillColor: chartBackground, Padding: chart.Box{Top: 40}},
		Canvas:     chart.Style{FillColor: chartBackground},
		XAxis:      chart.Style{FontColor: chartText},
		YAxis: chart.YAxis{
			Style: chart.Style{FontColor: chartText},
			Range: &chart.ContinuousRange{Min: 0, Max: float64(max(top, 1)) * 1.1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TopPlayers returns the first n players by score, highest first.
func TopPlayers(players []trophydomain.Player, n int) []trophydomain.Player {
	sorted := slices.Clone(players)
	slices.SortStableFunc(sorted, func(a, b trophydomain.Player) int {
		return b.CurrentScore - a.CurrentScore
	})
	return sorted[:min(n, len(sorted))]
}

func renderNoDataPlaceholder() ([]byte, error) {
	const (
		width  = 400
		height = 200
		msg    = "No players tracked yet"
	)

	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}

	r.SetFillColor(chartBackground)
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.Fill()

	r.SetFont(font)
	r.SetFontColor(chartText)
	r.SetFontSize(12.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (width-tb.Width())/2, (height+tb.Height())/2)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
