package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const maxStemLen = 80

var (
	dangerousChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	unsafeChars    = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)
	repeatedSeps   = regexp.MustCompile(`[_\-.]{2,}`)
)

// StoredFilename derives a collision-avoiding name from the uploaded one:
// <stem>_<YYYYMMDD_HHMMSSffffff><ext>, stem sanitised and bounded.
func StoredFilename(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if len(ext) <= 1 || !utf8.ValidString(ext) || unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	stem := SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "document"
	}
	if utf8.RuneCountInString(stem) > maxStemLen {
		stem = string([]rune(stem)[:maxStemLen])
	}

	ts := fmt.Sprintf("%s%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	return stem + "_" + ts + ext
}

// StorageKey scopes a stored filename to its owner.
func StorageKey(userID, storedFilename string) string {
	owner := SanitizeFilename(userID)
	if owner == "" {
		owner = "anonymous"
	}
	return owner + "/" + storedFilename
}

// SanitizeFilename keeps letters, digits, '_', '-' and '.', collapsing
// separator runs and trimming them from both ends.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = dangerousChars.ReplaceAllString(name, "")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = repeatedSeps.ReplaceAllString(name, "_")
	return strings.Trim(name, "_-.")
}
