package videos

import "testing"

func TestIsYouTubeURL(t *testing.T) {
	ok := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtube.com/watch?v=x",
		"youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?t=10",
	}
	bad := []string{"", "https://vimeo.com/1", "https://youtube.com/", "ftp://youtube.com/x", "https://notyoutube.com/watch?v=x"}
	for _, u := range ok {
		if !IsYouTubeURL(u) {
			t.Fatalf("expected %q to be accepted", u)
		}
	}
	for _, u := range bad {
		if IsYouTubeURL(u) {
			t.Fatalf("expected %q to be rejected", u)
		}
	}
}

func TestThumbnailFor(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=abc123&list=x": "https://img.youtube.com/vi/abc123/maxresdefault.jpg",
		"https://youtu.be/xyz?t=5":                      "https://img.youtube.com/vi/xyz/maxresdefault.jpg",
		"https://www.youtube.com/channel/foo":           "",
	}
	for in, want := range cases {
		if got := ThumbnailFor(in); got != want {
			t.Fatalf("ThumbnailFor(%q) = %q want %q", in, got, want)
		}
	}
}
