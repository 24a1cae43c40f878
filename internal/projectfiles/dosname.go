package projectfiles

import (
	"fmt"
	"path"
	"strings"
)

// dosName returns a lowercase 8.3 alias for name that does not collide with
// any entry in taken. Names that already fit 8.3 are returned as-is.
func dosName(name string, taken map[string]bool) string {
	ext := path.Ext(name)
	stem := sanitizeDOS(strings.TrimSuffix(name, ext))
	ext = sanitizeDOS(strings.TrimPrefix(ext, "."))
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if stem == "" {
		stem = "file"
	}

	join := func(s string) string {
		if ext == "" {
			return s
		}
		return s + "." + ext
	}

	if len(stem) <= 8 {
		if candidate := join(stem); !taken[candidate] {
			return candidate
		}
	}

	for n := 1; ; n++ {
		suffix := fmt.Sprintf("~%d", n)
		prefix := stem
		if limit := 8 - len(suffix); len(prefix) > limit {
			prefix = prefix[:limit]
		}
		if candidate := join(prefix + suffix); !taken[candidate] {
			return candidate
		}
	}
}

// sanitizeDOS lowercases s and drops characters that are not valid in a
// short file name.
func sanitizeDOS(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("!#$%&'()-@^_`{}~", r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
