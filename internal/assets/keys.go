package assets

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ChildPhotoKey names an uploaded reference photo. The millisecond timestamp
// plus slot index keeps repeated uploads from colliding.
func ChildPhotoKey(userID, childID string, index int, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%d.jpg", userID, childID, now.UnixMilli(), index)
}

// StoryPageKey names a generated page illustration.
func StoryPageKey(storyID string, pageNumber int, now time.Time) string {
	return fmt.Sprintf("%s/page-%d-%d.jpg", storyID, pageNumber, now.UnixMilli())
}

// PreviewKey names a theme or art style preview image. kind is "themes" or
// "styles".
func PreviewKey(kind, referenceID string, now time.Time) string {
	return fmt.Sprintf("%s/%s-%d.jpg", kind, referenceID, now.UnixMilli())
}

// KeyFromURL recovers the object key from a stored URL by locating the
// bucket segment. Works for both file URLs and object storage URLs.
func KeyFromURL(rawURL, bucket string) (string, bool) {
	marker := "/" + bucket + "/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", false
	}
	key := rawURL[idx+len(marker):]
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}

// ContentTypeForKey maps an object key extension to a MIME type.
func ContentTypeForKey(key string) string {
	switch path.Ext(key) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
