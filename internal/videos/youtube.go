package videos

import (
	"regexp"
	"strings"
)

var youtubeURL = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)

// IsYouTubeURL reports whether raw points at youtube.com or youtu.be.
func IsYouTubeURL(raw string) bool {
	return youtubeURL.MatchString(strings.TrimSpace(raw))
}

// YouTubeID extracts the video id from a watch URL (v=) or a youtu.be link.
func YouTubeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, after, ok := strings.Cut(raw, "v="); ok {
		id, _, _ := strings.Cut(after, "&")
		return id
	}
	if _, after, ok := strings.Cut(raw, "youtu.be/"); ok {
		id, _, _ := strings.Cut(after, "?")
		return id
	}
	return ""
}

// ThumbnailFor returns the max-resolution thumbnail URL, or "" when no id can
// be derived.
func ThumbnailFor(raw string) string {
	id := YouTubeID(raw)
	if id == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
}
