package ident

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultNamespace prefixes every generated URI unless another is configured.
const DefaultNamespace = "system#"

var (
	// ErrUnknownKind is returned for an entity kind with no identifying properties.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrMissingProperty is returned when an identifying property is absent.
	ErrMissingProperty = errors.New("missing identifying property")
)

// Kind is the kind of instantiated entity an identifier is generated for.
type Kind string

const (
	KindThreat          Kind = "T"
	KindMisbehaviourSet Kind = "MS"
	KindControlSet      Kind = "CS"
	KindControlStrategy Kind = "CSG"
)

// identifying lists, per kind, the properties whose values determine the ID.
// The first property also supplies the readable name inside the URI.
var identifying = map[Kind][]string{
	KindThreat:          {"threat", "bindings"},
	KindMisbehaviourSet: {"misbehaviour", "asset"},
	KindControlSet:      {"control", "asset"},
	KindControlStrategy: {"strategy", "threat"},
}

// Generator creates deterministic URIs for instantiated entities.
// URIs are content-addressable: the same kind and identifying properties
// always produce the same URI, so repeated validation runs yield the same
// identities and entities shared between threats collapse into one.
//
// URI format: {namespace}{kind}-{name}-{base64url(sha256(canonical)[:12])}
// where name is the local part of the defining domain entity.
//
// Example:
//
//	gen := ident.NewGenerator("")
//	uri := gen.ControlSet("domain#Firewall", "system#h1")
//	// uri = "system#CS-Firewall-" + 16 base64url characters
type Generator struct {
	namespace string
}

// NewGenerator creates a Generator. An empty namespace selects DefaultNamespace.
func NewGenerator(namespace string) *Generator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Generator{namespace: namespace}
}

// Namespace returns the URI prefix.
func (g *Generator) Namespace() string { return g.namespace }

// Generate creates the URI for an entity of the given kind.
func (g *Generator) Generate(kind Kind, properties map[string]any) (string, error) {
	props, ok := identifying[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	for _, p := range props {
		if _, ok := properties[p]; !ok {
			return "", fmt.Errorf("%w: %s needs %q", ErrMissingProperty, kind, p)
		}
	}

	canonical, err := buildCanonicalString(kind, props, properties)
	if err != nil {
		return "", fmt.Errorf("failed to build canonical string for %s: %w", kind, err)
	}

	hash := sha256.Sum256([]byte(canonical))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:12])

	name, _ := properties[props[0]].(string)
	return fmt.Sprintf("%s%s-%s-%s", g.namespace, kind, LocalName(name), encoded), nil
}

// Threat returns the URI of the threat instantiated from the domain threat
// at the given role bindings.
func (g *Generator) Threat(threatID string, bindings map[string]string) string {
	return g.must(KindThreat, map[string]any{"threat": threatID, "bindings": bindings})
}

// MisbehaviourSet returns the URI of misbehaviour mb located at asset.
func (g *Generator) MisbehaviourSet(mb, asset string) string {
	return g.must(KindMisbehaviourSet, map[string]any{"misbehaviour": mb, "asset": asset})
}

// ControlSet returns the URI of control located at asset.
func (g *Generator) ControlSet(control, asset string) string {
	return g.must(KindControlSet, map[string]any{"control": control, "asset": asset})
}

// ControlStrategy returns the URI of the domain strategy csg applied to the
// threat with the given URI.
func (g *Generator) ControlStrategy(csg, threatURI string) string {
	return g.must(KindControlStrategy, map[string]any{"strategy": csg, "threat": threatURI})
}

func (g *Generator) must(kind Kind, props map[string]any) string {
	uri, err := g.Generate(kind, props)
	if err != nil {
		// Only reachable with an unregistered kind or a missing property,
		// neither of which the typed helpers can produce.
		panic(err)
	}
	return uri
}

// LocalName returns the part of a URI after its last '#' or '/'.
func LocalName(uri string) string {
	if i := strings.LastIndexAny(uri, "#/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// buildCanonicalString renders kind:prop1=val1|prop2=val2 with properties in
// sorted order.
func buildCanonicalString(kind Kind, props []string, properties map[string]any) (string, error) {
	sorted := append([]string(nil), props...)
	sort.Strings(sorted)

	pairs := make([]string, 0, len(sorted))
	for _, p := range sorted {
		v, err := normalizeValue(properties[p])
		if err != nil {
			return "", fmt.Errorf("property %q: %w", p, err)
		}
		pairs = append(pairs, p+"="+v)
	}
	return fmt.Sprintf("%s:%s", kind, strings.Join(pairs, "|")), nil
}

// normalizeValue converts a property value to its canonical form. Strings are
// trimmed but keep their case since URIs are case sensitive. Maps are encoded
// as JSON, which orders their keys.
func normalizeValue(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "null", nil
	case string:
		return strings.TrimSpace(v), nil
	case []string:
		s := append([]string(nil), v...)
		sort.Strings(s)
		return strings.Join(s, ","), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
