// session-report renders an HTML accuracy report for a saved play session:
// timing offsets per note along the song plus the verdict breakdown.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/alexanderzliu/guitarzero/internal/scoring"
	"github.com/alexanderzliu/guitarzero/internal/session"
	"github.com/alexanderzliu/guitarzero/internal/units"
)

var (
	dbPath    = flag.String("db", "guitarzero.db", "Session database path")
	sessionID = flag.String("session", "", "Session ID (default: most recent)")
	outPath   = flag.String("out", "session-report.html", "Output HTML file")
)

func main() {
	flag.Parse()

	db, err := session.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open session database: %v", err)
	}
	defer db.Close()

	rec, err := pickSession(db, *sessionID)
	if err != nil {
		log.Fatalf("failed to find session: %v", err)
	}
	history, err := db.SessionVerdicts(rec.SessionID)
	if err != nil {
		log.Fatalf("failed to load verdicts: %v", err)
	}

	page := components.NewPage()
	page.AddCharts(offsetScatter(rec, history), resultBar(rec))

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s for session %s (%s, score %d)",
		*outPath, rec.SessionID, rec.ChartTitle, rec.Score.Score)
}

func pickSession(db *session.DB, id string) (session.Record, error) {
	if id != "" {
		return db.GetSession(id)
	}
	recs, err := db.ListSessions(1)
	if err != nil {
		return session.Record{}, err
	}
	if len(recs) == 0 {
		return session.Record{}, fmt.Errorf("no sessions recorded yet")
	}
	return recs[0], nil
}

var resultColors = map[scoring.Result]string{
	scoring.Perfect: "#35b779",
	scoring.Good:    "#6ece58",
	scoring.Ok:      "#fde725",
	scoring.Miss:    "#cf4446",
}

// offsetScatter plots each note's timing offset against its position in the
// song, one series per verdict so colours match the in-game feedback.
func offsetScatter(rec session.Record, history []scoring.VerdictEvent) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Session Accuracy", Theme: "dark", Width: "1100px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Timing accuracy: %s", rec.ChartTitle),
			Subtitle: fmt.Sprintf("session=%s score=%d max_streak=%d", rec.SessionID, rec.Score.Score, rec.Score.MaxStreak),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "song time (s)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "offset (ms)", NameLocation: "middle", NameGap: 40}),
	)

	series := map[scoring.Result][]opts.ScatterData{}
	for _, ev := range history {
		offset := ev.Verdict.OffsetMs
		if ev.Verdict.Result == scoring.Miss {
			// A miss has no meaningful offset; pin it to the window edge so
			// it still shows where in the song it happened.
			offset = 250
		}
		series[ev.Verdict.Result] = append(series[ev.Verdict.Result], opts.ScatterData{
			Value: []interface{}{ev.Note.TimeSec, offset},
			Name:  units.NoteName(ev.Note.Midi),
		})
	}
	for _, r := range []scoring.Result{scoring.Perfect, scoring.Good, scoring.Ok, scoring.Miss} {
		data := series[r]
		if len(data) == 0 {
			continue
		}
		scatter.AddSeries(r.String(), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: resultColors[r]}),
		)
	}
	return scatter
}

// resultBar shows the verdict breakdown.
func resultBar(rec session.Record) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Verdicts"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"perfect", "good", "ok", "miss"})
	bar.AddSeries("count", []opts.BarData{
		{Value: rec.Score.PerfectCount},
		{Value: rec.Score.GoodCount},
		{Value: rec.Score.OkCount},
		{Value: rec.Score.MissCount},
	}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}
