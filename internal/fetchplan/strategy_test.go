package fetchplan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
)

func cachedEntry(lang, videoID string) *subcache.Entry {
	return &subcache.Entry{Key: subcache.NewKey(lang, videoID)}
}

func TestAnalyze(t *testing.T) {
	byLang := map[string]*subcache.Entry{
		"en": cachedEntry("en", "vid1"),
	}

	// example: only the primary cached, dual mode on -> secondary missing
	status := Analyze(byLang, "en", "zh", true)
	assert.True(t, status.HasPrimary)
	assert.False(t, status.HasSecondary)
	assert.False(t, status.NeedsPrimary)
	assert.True(t, status.NeedsSecondary)
	assert.Equal(t, FetchSecondary, Determine(status))

	// dual mode off -> secondary never needed
	status = Analyze(byLang, "en", "zh", false)
	assert.False(t, status.NeedsSecondary)
	assert.Equal(t, UseCacheOnly, Determine(status))

	// nothing cached, dual on -> both needed
	status = Analyze(nil, "en", "zh", true)
	assert.Equal(t, FetchBoth, Determine(status))
}

func TestDetermine_IsPure(t *testing.T) {
	cases := []struct {
		status Status
		want   Strategy
	}{
		{Status{NeedsPrimary: false, NeedsSecondary: false}, UseCacheOnly},
		{Status{NeedsPrimary: true, NeedsSecondary: false}, FetchPrimary},
		{Status{NeedsPrimary: false, NeedsSecondary: true}, FetchSecondary},
		{Status{NeedsPrimary: true, NeedsSecondary: true}, FetchBoth},
	}
	for _, c := range cases {
		// same inputs always yield the same strategy
		for i := 0; i < 3; i++ {
			assert.Equal(t, c.want, Determine(c.status), "status %+v", c.status)
		}
	}
}

func TestStrategy_Languages(t *testing.T) {
	assert.Nil(t, UseCacheOnly.Languages("en", "zh"))
	assert.Equal(t, []string{"en"}, FetchPrimary.Languages("en", "zh"))
	assert.Equal(t, []string{"zh"}, FetchSecondary.Languages("en", "zh"))
	assert.Equal(t, []string{"en", "zh"}, FetchBoth.Languages("en", "zh"))
}
