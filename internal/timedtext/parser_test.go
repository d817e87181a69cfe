package timedtext

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0" encoding="utf-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" xmlns:ttp="http://www.w3.org/ns/ttml#parameter" xmlns:tts="http://www.w3.org/ns/ttml#styling" ttp:tickRate="10000000">
  <head>
    <layout>
      <region xml:id="bottomCenter" tts:origin="10.000% 50.000%" tts:extent="80.000% 40.000%" tts:displayAlign="after"/>
      <region xml:id="topCenter" tts:origin="10.000% 10.000%" tts:extent="80.000% 20.000%"/>
    </layout>
  </head>
  <body>
    <div>
      <p xml:id="c1" begin="915080832t" end="915180832t" region="bottomCenter">Hello<br/>World</p>
      <p xml:id="c2" begin="100000000t" end="150000000t"><span>Nested </span><span>spans</span></p>
      <p xml:id="broken" begin="200000000t">missing end</p>
    </div>
  </body>
</tt>`

func TestParse_TickRateTimestamps(t *testing.T) {
	doc := Parse([]byte(sampleDoc))
	require.Len(t, doc.Subtitles, 2)

	// entries come back sorted by start time
	first := doc.Subtitles[0]
	assert.Equal(t, "c2", first.ID)
	assert.InDelta(t, 10.0, first.StartTime, 1e-9)
	assert.InDelta(t, 15.0, first.EndTime, 1e-9)
	assert.Equal(t, "Nested spans", first.Text)
	assert.False(t, first.HasRegion)

	second := doc.Subtitles[1]
	assert.InDelta(t, 91.5080832, second.StartTime, 1e-9)
	assert.InDelta(t, 91.5180832, second.EndTime, 1e-9)
	assert.Equal(t, "Hello\nWorld", second.Text)
	assert.True(t, second.HasRegion)
	assert.Equal(t, "bottomCenter", second.RegionID)
}

func TestParse_Regions(t *testing.T) {
	doc := Parse([]byte(sampleDoc))
	require.Len(t, doc.Regions, 2)

	bottom, ok := doc.Regions["bottomCenter"]
	require.True(t, ok)
	assert.InDelta(t, 0.10, bottom.Origin.X, 1e-9)
	assert.InDelta(t, 0.50, bottom.Origin.Y, 1e-9)
	assert.InDelta(t, 0.80, bottom.Extent.W, 1e-9)
	assert.InDelta(t, 0.40, bottom.Extent.H, 1e-9)
	assert.Equal(t, DisplayAlignAfter, bottom.DisplayAlign)

	top := doc.Regions["topCenter"]
	assert.Equal(t, DisplayAlignUnset, top.DisplayAlign)
}

func TestParse_MalformedDocumentReturnsEmpty(t *testing.T) {
	for _, input := range []string{
		"",
		"not xml at all",
		"<unclosed",
		"<other></other>",
	} {
		doc := Parse([]byte(input))
		assert.Empty(t, doc.Subtitles, "input %q", input)
		assert.Empty(t, doc.Regions, "input %q", input)
	}
}

func TestParse_MalformedRegionDegradesToZero(t *testing.T) {
	raw := `<tt ttp:tickRate="10000000" xmlns:ttp="p" xmlns:tts="s">
  <head><layout><region xml:id="r" tts:origin="garbage" tts:extent="80.000% 40.000%"/></layout></head>
  <body><p begin="1s" end="2s">x</p></body>
</tt>`
	doc := Parse([]byte(raw))
	r, ok := doc.Regions["r"]
	require.True(t, ok)
	assert.Equal(t, Point{}, r.Origin)
	assert.InDelta(t, 0.80, r.Extent.W, 1e-9)
}

func TestParse_BodyLevelParagraphs(t *testing.T) {
	raw := `<tt><body><p begin="2.5" end="4">two</p><p begin="0.5" end="2">one</p></body></tt>`
	doc := Parse([]byte(raw))
	require.Len(t, doc.Subtitles, 2)
	assert.Equal(t, "one", doc.Subtitles[0].Text)
	assert.Equal(t, "two", doc.Subtitles[1].Text)
}

func TestParseTimestamp_TickRoundTrip(t *testing.T) {
	cases := []struct {
		ticks int64
		rate  int64
	}{
		{0, 10000000},
		{915080832, 10000000},
		{1, 1000},
		{123456789, 90000},
	}
	for _, c := range cases {
		got, err := parseTimestamp(strconv.FormatInt(c.ticks, 10)+"t", c.rate)
		require.NoError(t, err)
		assert.InDelta(t, float64(c.ticks)/float64(c.rate), got, 1e-9)
	}
}

func TestParseTimestamp_ClockAndSeconds(t *testing.T) {
	cases := map[string]float64{
		"01:02:03.500": 3723.5,
		"00:00:10":     10,
		"91.508":       91.508,
		"12s":          12,
	}
	for input, want := range cases {
		got, err := parseTimestamp(input, DefaultTickRate)
		require.NoError(t, err, "input %q", input)
		assert.InDelta(t, want, got, 1e-9, "input %q", input)
	}

	_, err := parseTimestamp("garbage", DefaultTickRate)
	assert.Error(t, err)
}
