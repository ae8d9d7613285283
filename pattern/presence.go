package pattern

// PresencePolicy decides whether a match counts given the template's
// necessary roles, its sufficient groups and which roles ended up bound.
// Mandatory roles are checked separately and are not passed in.
type PresencePolicy func(necessary []string, sufficient []Group, bound func(role string) bool) bool

// NecessaryOrSufficient accepts a match when every necessary role is bound or
// when some sufficient group is fully bound. A template declaring only one
// kind is judged by that kind alone; one declaring neither always passes.
func NecessaryOrSufficient(necessary []string, sufficient []Group, bound func(string) bool) bool {
	switch {
	case len(necessary) == 0 && len(sufficient) == 0:
		return true
	case len(sufficient) == 0:
		return allBound(necessary, bound)
	case len(necessary) == 0:
		return anyGroupBound(sufficient, bound)
	default:
		return allBound(necessary, bound) || anyGroupBound(sufficient, bound)
	}
}

// NecessaryAndSufficient requires both every necessary role bound and, when
// sufficient groups are declared, at least one of them fully bound.
func NecessaryAndSufficient(necessary []string, sufficient []Group, bound func(string) bool) bool {
	if !allBound(necessary, bound) {
		return false
	}
	return len(sufficient) == 0 || anyGroupBound(sufficient, bound)
}

func allBound(roles []string, bound func(string) bool) bool {
	for _, r := range roles {
		if !bound(r) {
			return false
		}
	}
	return true
}

func anyGroupBound(groups []Group, bound func(string) bool) bool {
	for _, g := range groups {
		if allBound(g.Roles, bound) {
			return true
		}
	}
	return false
}
