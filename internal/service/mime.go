package service

import "strings"

// Storage extensions per accepted mime type. A mime type without an entry
// cannot be stored and is answered with UnsupportedType.
var mimeExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

func normalizeMime(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// aliasMime folds the common image/jpg spelling into image/jpeg.
func aliasMime(m string) string {
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

func mimesEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return aliasMime(a) == aliasMime(b)
}

func extensionFor(mime string) (string, bool) {
	ext, ok := mimeExtensions[aliasMime(mime)]
	return ext, ok
}
