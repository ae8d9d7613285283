package threat

import (
	"encoding/json"
	"sort"
)

// URISet is a set of entity URIs. It marshals as a sorted JSON array.
type URISet map[string]struct{}

// NewURISet returns a set holding uris.
func NewURISet(uris ...string) URISet {
	s := make(URISet, len(uris))
	for _, u := range uris {
		s.Add(u)
	}
	return s
}

// Add inserts uri. Empty strings are ignored.
func (s URISet) Add(uri string) {
	if uri != "" {
		s[uri] = struct{}{}
	}
}

// AddAll inserts every member of other.
func (s URISet) AddAll(other URISet) {
	for u := range other {
		s[u] = struct{}{}
	}
}

// Has reports whether uri is a member.
func (s URISet) Has(uri string) bool {
	_, ok := s[uri]
	return ok
}

// Len returns the number of members.
func (s URISet) Len() int { return len(s) }

// Sorted returns the members in ascending order.
func (s URISet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s URISet) Clone() URISet {
	out := make(URISet, len(s))
	for u := range s {
		out[u] = struct{}{}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (s URISet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *URISet) UnmarshalJSON(data []byte) error {
	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		return err
	}
	*s = NewURISet(uris...)
	return nil
}
