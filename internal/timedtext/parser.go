package timedtext

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// DefaultTickRate is the tick-per-second rate assumed when the document does
// not declare one.
const DefaultTickRate int64 = 10000000

type ttRegion struct {
	ID           string `xml:"id,attr"`
	Origin       string `xml:"origin,attr"`
	Extent       string `xml:"extent,attr"`
	DisplayAlign string `xml:"displayAlign,attr"`
}

type ttParagraph struct {
	ID     string `xml:"id,attr"`
	Begin  string `xml:"begin,attr"`
	End    string `xml:"end,attr"`
	Region string `xml:"region,attr"`
	Inner  []byte `xml:",innerxml"`
}

type ttDiv struct {
	Paragraphs []ttParagraph `xml:"p"`
}

type ttDocument struct {
	XMLName  xml.Name `xml:"tt"`
	TickRate string   `xml:"tickRate,attr"`
	Head     struct {
		Layout struct {
			Regions []ttRegion `xml:"region"`
		} `xml:"layout"`
	} `xml:"head"`
	Body struct {
		Divs       []ttDiv       `xml:"div"`
		Paragraphs []ttParagraph `xml:"p"` // documents without a div wrapper
	} `xml:"body"`
}

// Parse parses a UTF-8 timed-text markup document into subtitle entries and
// layout regions. It never fails: malformed input yields an empty Document
// and a logged warning. Entries are returned sorted ascending by start time.
func Parse(doc []byte) Document {
	empty := Document{Regions: map[string]RegionConfig{}}

	var root ttDocument
	if err := xml.Unmarshal(doc, &root); err != nil {
		log.Warn("Failed to parse timed-text document: %v", err)
		return empty
	}

	tickRate := DefaultTickRate
	if root.TickRate != "" {
		if rate, err := strconv.ParseInt(root.TickRate, 10, 64); err == nil && rate > 0 {
			tickRate = rate
		} else {
			log.Warn("Invalid tick rate %q, using default %d", root.TickRate, DefaultTickRate)
		}
	}

	paragraphs := make([]ttParagraph, 0)
	for _, div := range root.Body.Divs {
		paragraphs = append(paragraphs, div.Paragraphs...)
	}
	paragraphs = append(paragraphs, root.Body.Paragraphs...)

	entries := make([]Entry, 0, len(paragraphs))
	for i, p := range paragraphs {
		// Both timestamps are required; cues without them are skipped silently.
		if p.Begin == "" || p.End == "" {
			continue
		}
		start, err := parseTimestamp(p.Begin, tickRate)
		if err != nil {
			log.Warn("Skipping cue with invalid begin %q: %v", p.Begin, err)
			continue
		}
		end, err := parseTimestamp(p.End, tickRate)
		if err != nil {
			log.Warn("Skipping cue with invalid end %q: %v", p.End, err)
			continue
		}
		if end < start {
			start, end = end, start
		}

		id := p.ID
		if id == "" {
			id = fmt.Sprintf("p%d", i+1)
		}

		entries = append(entries, Entry{
			ID:        id,
			StartTime: start,
			EndTime:   end,
			Text:      extractText(p.Inner),
			RegionID:  p.Region,
			HasRegion: p.Region != "",
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime < entries[j].StartTime
	})

	regions := make(map[string]RegionConfig, len(root.Head.Layout.Regions))
	for _, r := range root.Head.Layout.Regions {
		if r.ID == "" {
			continue
		}
		x, y := parsePercentagePair(r.Origin)
		w, h := parsePercentagePair(r.Extent)
		regions[r.ID] = RegionConfig{
			ID:           r.ID,
			Origin:       Point{X: x, Y: y},
			Extent:       Size{W: w, H: h},
			DisplayAlign: parseDisplayAlign(r.DisplayAlign),
		}
	}

	return Document{Subtitles: entries, Regions: regions}
}

// extractText concatenates the character data of a cue, recursing through
// inline span wrappers and mapping <br/> markers to newlines. Lines are
// trimmed and blank lines dropped so markup indentation never leaks into
// the subtitle text.
func extractText(inner []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			if t.Name.Local == "br" {
				b.WriteString("\n")
			}
		}
	}

	lines := strings.Split(b.String(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

var clockTimeRe = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})(?:\.(\d{1,3}))?$`)

// parseTimestamp converts one timed-text timestamp to seconds. Tick values
// ("915080832t") divide by the document tick rate; clock values parse as
// HH:MM:SS(.mmm); everything else parses as decimal seconds with an optional
// "s" suffix.
func parseTimestamp(s string, tickRate int64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if strings.HasSuffix(s, "t") {
		ticks, err := strconv.ParseInt(strings.TrimSuffix(s, "t"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid tick timestamp: %w", err)
		}
		return float64(ticks) / float64(tickRate), nil
	}

	if m := clockTimeRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		ms := 0
		if m[4] != "" {
			// pad to milliseconds: ".5" means 500ms
			frac := m[4] + strings.Repeat("0", 3-len(m[4]))
			ms, _ = strconv.Atoi(frac)
		}
		return float64(h)*3600 + float64(min)*60 + float64(sec) + float64(ms)/1000, nil
	}

	seconds, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	return seconds, nil
}

// parsePercentagePair parses attribute values like "10.000% 50.000%" into
// fractions. Malformed pairs degrade to zero values rather than failing the
// whole document.
func parsePercentagePair(s string) (float64, float64) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		if s != "" {
			log.Warn("Malformed percentage pair %q, using zero origin", s)
		}
		return 0, 0
	}

	parse := func(field string) (float64, bool) {
		if !strings.HasSuffix(field, "%") {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(field, "%"), 64)
		if err != nil {
			return 0, false
		}
		return clampFraction(v / 100), true
	}

	a, okA := parse(fields[0])
	b, okB := parse(fields[1])
	if !okA || !okB {
		log.Warn("Malformed percentage pair %q, using zero origin", s)
		return 0, 0
	}
	return a, b
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseDisplayAlign(s string) DisplayAlign {
	switch s {
	case "before":
		return DisplayAlignBefore
	case "center":
		return DisplayAlignCenter
	case "after":
		return DisplayAlignAfter
	default:
		return DisplayAlignUnset
	}
}
