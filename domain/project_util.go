package domain

import (
	"strings"
)

// EscapeProjectName converts a qualified project name ("owner/repo") into the
// on-disk directory name used by the acquisition layout ("owner_repo").  Only
// the first path separator is rewritten; underscores elsewhere in the name
// are preserved.
func EscapeProjectName(projectName string) string {
	return strings.Replace(projectName, "/", "_", 1)
}

// UnescapeProjectName reverses EscapeProjectName, recovering the qualified
// project name from an acquisition directory name.
func UnescapeProjectName(dirName string) string {
	return strings.Replace(dirName, "_", "/", 1)
}
