package cache

import (
	"strings"

	"github.com/kailas-cloud/grantmatch/internal/db"
)

// Match reports whether key matches pattern, where '*' matches any run of
// characters and every other character matches itself.
func Match(pattern, key string) bool {
	return db.GlobMatch(pattern, key)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// remoteGlob converts a '*'-only pattern into a SCAN MATCH glob.
func remoteGlob(pattern string) string {
	return globEscaper.Replace(pattern)
}
