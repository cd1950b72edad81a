package gallery

import (
	"path/filepath"
	"strings"
	"unicode"
)

var supportedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// referenceExt is the extension every added reference image is stored under.
const referenceExt = ".jpg"

func isSupportedImage(filename string) bool {
	return supportedImageExts[strings.ToLower(filepath.Ext(filename))]
}

// StorageKey normalizes a person's name into the file stem used on disk:
// lowercase with spaces replaced by underscores.
func StorageKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// DisplayName turns a storage key back into a title-cased name.
func DisplayName(key string) string {
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}
