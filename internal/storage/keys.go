package storage

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// DefaultExtension is used when a locator's path carries no extension.
const DefaultExtension = ".jpg"

const fallbackContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// ObjectKey derives the storage key for an item: its decimal id followed by
// the extension of the locator's URL path. Query strings and fragments are
// ignored.
func ObjectKey(id int64, locator string) string {
	return strconv.FormatInt(id, 10) + extensionOf(locator)
}

func extensionOf(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil {
		p = u.Path
	} else if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	ext := path.Ext(p)
	if ext == "" || ext == "." || strings.ContainsAny(ext, "/\\") {
		return DefaultExtension
	}
	return strings.ToLower(ext)
}

// ContentType maps a key's extension to a MIME type.
func ContentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return fallbackContentType
}
