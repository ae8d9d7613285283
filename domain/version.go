package domain

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions orders two domain versions. Semantic versions, with or
// without a leading "v", compare by precedence and sort after anything that
// is not one; other strings compare lexically.
func CompareVersions(a, b string) int {
	va, vb := canonical(a), canonical(b)
	switch {
	case va != "" && vb != "":
		return semver.Compare(va, vb)
	case va != "":
		return 1
	case vb != "":
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// Latest returns the model with the highest version among those named name.
func Latest(models []*Model, name string) (*Model, bool) {
	var best *Model
	for _, m := range models {
		if m.Name != name {
			continue
		}
		if best == nil || CompareVersions(m.Version, best.Version) > 0 {
			best = m
		}
	}
	return best, best != nil
}
