package ingest

import (
	"testing"

	"github.com/mmcdole/gofeed"
)

func TestExtractThumbnailURL_PrefersFeedImage(t *testing.T) {
	item := &gofeed.Item{
		Image:   &gofeed.Image{URL: "https://example.com/cover.png"},
		Content: `<img src="https://example.com/inline.png">`,
	}

	if got := extractThumbnailURL(item); got != "https://example.com/cover.png" {
		t.Errorf("extractThumbnailURL() = %q, image要素を優先すべき", got)
	}
}

func TestExtractThumbnailURL_ImageEnclosure(t *testing.T) {
	item := &gofeed.Item{
		Enclosures: []*gofeed.Enclosure{
			{URL: "https://example.com/audio.mp3", Type: "audio/mpeg"},
			{URL: "https://example.com/thumb.jpg", Type: "image/jpeg"},
		},
	}

	if got := extractThumbnailURL(item); got != "https://example.com/thumb.jpg" {
		t.Errorf("extractThumbnailURL() = %q, 画像enclosureが選ばれるべき", got)
	}
}

func TestExtractThumbnailURL_FirstImageInContent(t *testing.T) {
	item := &gofeed.Item{
		Content: `<p>본문</p><img src="https://example.com/a.png"><img src="https://example.com/b.png">`,
	}

	if got := extractThumbnailURL(item); got != "https://example.com/a.png" {
		t.Errorf("extractThumbnailURL() = %q, 先頭のimgが選ばれるべき", got)
	}
}

func TestExtractThumbnailURL_FallsBackToDescription(t *testing.T) {
	item := &gofeed.Item{
		Description: `<img src="https://example.com/desc.png">`,
	}

	if got := extractThumbnailURL(item); got != "https://example.com/desc.png" {
		t.Errorf("extractThumbnailURL() = %q", got)
	}
}

func TestExtractThumbnailURL_IgnoresDataURI(t *testing.T) {
	item := &gofeed.Item{
		Content: `<img src="data:image/png;base64,iVBOR"><p>텍스트만</p>`,
	}

	if got := extractThumbnailURL(item); got != "" {
		t.Errorf("extractThumbnailURL() = %q, data: URIは無視すべき", got)
	}
}

func TestExtractThumbnailURL_NoImage(t *testing.T) {
	item := &gofeed.Item{
		Content: `<p>이미지 없는 글</p>`,
	}

	if got := extractThumbnailURL(item); got != "" {
		t.Errorf("extractThumbnailURL() = %q, want empty", got)
	}
}
