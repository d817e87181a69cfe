package host

// AcquisitionMode labels which source produced a payload.
type AcquisitionMode string

const (
	ModeDOM       AcquisitionMode = "dom"
	ModeIntercept AcquisitionMode = "intercept"
)

// Position is a region-derived fractional placement for a cue.
type Position struct {
	X     float64
	Y     float64
	W     float64
	H     float64
	Align string
}

// TrackCue is one language's cue inside a dual-subtitle payload.
type TrackCue struct {
	Language  string
	Text      string
	StartTime float64
	EndTime   float64
}

// DualSubtitleData carries both tracks of a dual-subtitle event. Only the
// interception source populates it.
type DualSubtitleData struct {
	Primary   TrackCue
	Secondary TrackCue
}

// SubtitlePayload is the normalized subtitle event. Its shape is identical
// in both acquisition modes.
type SubtitlePayload struct {
	Text           string
	HTMLContent    string
	Position       *Position
	Timestamp      float64
	Mode           AcquisitionMode
	VideoID        string
	IsDualSubtitle bool
	DualSubtitle   *DualSubtitleData
}
