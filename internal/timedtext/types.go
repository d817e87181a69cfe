package timedtext

// DisplayAlign is the vertical alignment of a layout region.
type DisplayAlign string

const (
	DisplayAlignBefore DisplayAlign = "before"
	DisplayAlignCenter DisplayAlign = "center"
	DisplayAlignAfter  DisplayAlign = "after"
	DisplayAlignUnset  DisplayAlign = ""
)

// Entry represents a single subtitle cue. Entries are immutable once parsed
// and always sorted ascending by StartTime within a Document.
type Entry struct {
	ID        string  // cue id, synthesized when the document carries none
	StartTime float64 // seconds
	EndTime   float64 // seconds, >= StartTime
	Text      string  // may contain line breaks
	RegionID  string  // optional layout region reference
	HasRegion bool
}

// Point is a fractional screen position (0..1 on both axes).
type Point struct {
	X float64
	Y float64
}

// Size is a fractional screen extent (0..1 on both axes).
type Size struct {
	W float64
	H float64
}

// RegionConfig is a named rectangular placement area referenced by entries.
// It is parsed once per document and consumed only for position calculation.
type RegionConfig struct {
	ID           string
	Origin       Point
	Extent       Size
	DisplayAlign DisplayAlign
}

// Document is the result of parsing one timed-text document.
// An empty Document is a valid, intentional output for malformed input.
type Document struct {
	Subtitles []Entry
	Regions   map[string]RegionConfig
}
