// internal/utils/filename.go
package utils

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeFilename убирает символы, недопустимые в имени файла, и заменяет пробелы на "_".
func SanitizeFilename(filename string) string {
	filename = unsafeFilenameChars.ReplaceAllString(filename, "")
	return strings.ReplaceAll(filename, " ", "_")
}
