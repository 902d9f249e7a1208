package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxFilenameLength = 100 // bytes

// SanitizeFilename cleans a string to be safe for use as a filename component.
// Query keys and institution names are often CJK, so truncation never splits a rune.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		cut := maxFilenameLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.Trim(sanitized[:cut], "_ ")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}
