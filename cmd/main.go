package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Vinson1014/SubPal-sub000/internal/config"
	"github.com/Vinson1014/SubPal-sub000/internal/timedtext"
)

// Inspector entry point: parses a timed-text document, builds the time index
// and prints what the engine would see. Usage:
//
//	subpal-inspect <document.xml> [playback-seconds]
func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	if len(os.Args) < 2 {
		log.Fatal("usage: subpal-inspect <document.xml> [playback-seconds]")
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal("Failed to read document: ", err)
	}

	doc := timedtext.Parse(raw)
	index := timedtext.BuildIndex(doc.Subtitles, cfg.Index.BucketSeconds)

	fmt.Printf("cues: %d  regions: %d  index buckets: %d (width %ds)\n",
		len(doc.Subtitles), len(doc.Regions), index.Len(), index.BucketSeconds())
	if detected := timedtext.DetectLanguage(doc.Subtitles); !detected.IsRoot() {
		fmt.Printf("detected language: %s\n", detected)
	}

	if len(os.Args) > 2 {
		t, err := strconv.ParseFloat(os.Args[2], 64)
		if err != nil {
			log.Fatal("Invalid playback time: ", err)
		}
		cue := index.Lookup(t, cfg.Timing.LookupTolerance.Seconds())
		if cue == nil {
			fmt.Printf("no cue at %.3fs\n", t)
			return
		}
		fmt.Printf("cue %s [%.3f-%.3f]: %s\n", cue.ID, cue.StartTime, cue.EndTime, cue.Text)
		return
	}

	for _, cue := range doc.Subtitles {
		fmt.Printf("%-8s %9.3f %9.3f  %s\n", cue.ID, cue.StartTime, cue.EndTime, cue.Text)
	}
}
