// chart-inspect loads a MIDI chart and prints the judged note schedule, for
// verifying what the importer extracted before a play session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/alexanderzliu/guitarzero/internal/chart"
	"github.com/alexanderzliu/guitarzero/internal/units"
)

var (
	jsonOut = flag.Bool("json", false, "Emit the full chart as JSON instead of a table")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <chart.mid>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	c, err := chart.Load(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to load chart: %v", err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid chart: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			log.Fatalf("failed to encode chart: %v", err)
		}
		return
	}

	chords := 0
	seen := map[string]bool{}
	for _, n := range c.Notes {
		if n.IsChord && !seen[n.EventID] {
			chords++
			seen[n.EventID] = true
		}
	}

	fmt.Printf("%s\n", c.Title)
	fmt.Printf("  bpm:      %.1f (beat %.3fs)\n", c.BPM, c.BeatDurationSec)
	fmt.Printf("  duration: %.1fs\n", c.DurationSec)
	fmt.Printf("  notes:    %d (%d chord events)\n\n", len(c.Notes), chords)

	fmt.Printf("%9s  %-5s  %6s  %4s  %s\n", "time", "note", "string", "fret", "event")
	for _, n := range c.Notes {
		marker := ""
		if n.IsChord {
			marker = fmt.Sprintf("chord %s[%d]", shortID(n.EventID), n.NoteIndex)
		}
		fmt.Printf("%8.3fs  %-5s  %6d  %4d  %s\n",
			n.TimeSec, units.NoteName(n.Midi), n.String, n.Fret, marker)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
