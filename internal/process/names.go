package process

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// SafeName reduces an uploaded file name to a clean stem: path components
// and the extension are stripped, and everything outside letters, digits,
// '-', '_' and spaces is removed. An empty result becomes "image".
func SafeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "image"
	}
	return cleaned
}

// UniqueName reserves candidate in used, or probes stem_2.ext, stem_3.ext,
// ... until a free name is found. used is scoped to one batch run.
func UniqueName(candidate string, used map[string]struct{}) string {
	if _, taken := used[candidate]; !taken {
		used[candidate] = struct{}{}
		return candidate
	}
	ext := filepath.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	for counter := 2; ; counter++ {
		name := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, taken := used[name]; !taken {
			used[name] = struct{}{}
			return name
		}
	}
}
