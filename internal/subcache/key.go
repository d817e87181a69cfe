package subcache

import (
	"fmt"
	"strings"
)

// Key is the composite identifier of one cached parsed document:
// {language}_{videoId}[_extraParams...]. The string form doubles as the
// correlation token between a fetch request and the interception
// notification that satisfies it.
type Key struct {
	Language string
	VideoID  string
	Extra    []string
}

func NewKey(language, videoID string, extra ...string) Key {
	return Key{Language: language, VideoID: videoID, Extra: extra}
}

func (k Key) String() string {
	parts := append([]string{k.Language, k.VideoID}, k.Extra...)
	return strings.Join(parts, "_")
}

// ParseKey splits a cache key back into its parts. Segments past the second
// are kept as opaque extra parameters.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("invalid cache key %q", s)
	}
	return Key{
		Language: parts[0],
		VideoID:  parts[1],
		Extra:    parts[2:],
	}, nil
}
