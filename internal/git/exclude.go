package git

import (
	"path"
	"strings"
)

// Generated, vendored and binary paths carry no ownership signal and are
// dropped before aggregation.
var excludedNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"Cargo.lock":        true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"go.sum":            true,
}

var excludedExtensions = map[string]bool{
	".min.js":  true,
	".min.css": true,
	".map":     true,
	".svg":     true,
	".png":     true,
	".jpg":     true,
	".jpeg":    true,
	".gif":     true,
	".ico":     true,
	".woff":    true,
	".woff2":   true,
	".ttf":     true,
	".eot":     true,
	".pdf":     true,
	".zip":     true,
	".gz":      true,
	".jar":     true,
	".snap":    true,
	".lock":    true,
}

var excludedDirPrefixes = []string{
	"vendor/",
	"node_modules/",
	"dist/",
	"build/",
	".github/",
	".circleci/",
	"docs/",
}

// IsExcludedPath reports whether a file path should be dropped from
// history and ownership analysis.
func IsExcludedPath(p string) bool {
	base := path.Base(p)
	if excludedNames[base] {
		return true
	}
	lower := strings.ToLower(p)
	for ext := range excludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, prefix := range excludedDirPrefixes {
		if strings.HasPrefix(p, prefix) || strings.Contains(p, "/"+prefix) {
			return true
		}
	}
	return false
}
