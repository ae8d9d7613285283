package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// ReasonBudget is the Result.Reason of a search stopped by the expansion bound.
const ReasonBudget = "expansion budget exhausted"

// ErrNilInput is returned when Match is called without a graph or template.
var ErrNilInput = errors.New("graph and template are required")

// Anchor fixes one role of the template to a specific asset.
type Anchor struct {
	Role    string
	AssetID string
}

// Match is an accepted role to asset assignment.
type Match struct {
	// Pattern is the template name.
	Pattern string `json:"pattern"`

	// Bindings maps each bound role to an asset ID. Optional roles that could
	// not be bound are absent.
	Bindings map[string]string `json:"bindings"`
}

// Asset returns the asset bound to role.
func (m Match) Asset(role string) (string, bool) {
	id, ok := m.Bindings[role]
	return id, ok
}

// Roles returns the bound roles, sorted.
func (m Match) Roles() []string {
	out := make([]string, 0, len(m.Bindings))
	for r := range m.Bindings {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Key returns a stable identity for the match, used to deduplicate matches
// found from different anchors.
func (m Match) Key() string {
	var b strings.Builder
	b.WriteString(m.Pattern)
	for _, r := range m.Roles() {
		b.WriteByte('|')
		b.WriteString(r)
		b.WriteByte('=')
		b.WriteString(m.Bindings[r])
	}
	return b.String()
}

// Result is the outcome of one Match call.
type Result struct {
	Pattern string  `json:"pattern"`
	Matches []Match `json:"matches"`

	// Incomplete is set when the search stopped early because the context
	// ended or the expansion bound was reached. Matches then holds the
	// matches found before the stop.
	Incomplete bool   `json:"incomplete,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Expansions is the number of search states explored.
	Expansions int `json:"expansions"`
}

// Matcher enumerates the matches of pattern templates in asset graphs.
// A Matcher holds no per-search state and is safe for concurrent use.
type Matcher struct {
	cfg config
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Matcher{cfg: cfg}
}

// Match enumerates every acceptable assignment of t's roles to assets of g.
// A non-mandatory role is left unbound only when no consistent binding for
// it exists, so an assignment that another match extends is not reported.
// When anchor is non-nil the anchor role is bound to the anchor asset and is
// required in every match, whatever its declared presence.
//
// An unsatisfiable template, or an anchor asset that is missing or does not
// qualify for the anchor role, yields an empty result rather than an error.
// Cancellation of ctx or exhaustion of the expansion bound yields an
// incomplete result holding the matches found so far.
func (m *Matcher) Match(ctx context.Context, g *assetgraph.Graph, t *pattern.Template, anchor *Anchor) (*Result, error) {
	if g == nil || t == nil {
		return nil, ErrNilInput
	}

	ctx, span := m.cfg.tracer.Start(ctx, "matcher.Match",
		trace.WithAttributes(
			attribute.String("pattern", t.Name()),
			attribute.Int("graph.assets", g.Len()),
		),
	)
	defer span.End()

	res := &Result{Pattern: t.Name()}
	s := newSearch(ctx, g, t, m.cfg)
	root := NewState(t)

	if anchor != nil {
		span.SetAttributes(
			attribute.String("anchor.role", anchor.Role),
			attribute.String("anchor.asset", anchor.AssetID),
		)
		if !t.HasRole(anchor.Role) {
			err := fmt.Errorf("%w: %s in pattern %s", ErrUnknownRole, anchor.Role, t.Name())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		n, ok := g.Node(anchor.AssetID)
		if !ok || !t.Accepts(anchor.Role, n) {
			span.SetAttributes(attribute.Int("matches", 0))
			return res, nil
		}
		root.Bind(anchor.Role, n)
		s.required[anchor.Role] = true
	}

	s.run(root)

	res.Matches = maximal(s.matches)
	res.Expansions = s.expansions
	if s.stopped != "" {
		res.Incomplete = true
		res.Reason = s.stopped
		span.AddEvent("search incomplete", trace.WithAttributes(attribute.String("reason", s.stopped)))
		m.cfg.logger.Warn("pattern search incomplete",
			"pattern", t.Name(),
			"reason", s.stopped,
			"expansions", s.expansions,
			"matches", len(s.matches),
		)
	}

	span.SetAttributes(
		attribute.Int("matches", len(res.Matches)),
		attribute.Int("expansions", res.Expansions),
		attribute.Bool("incomplete", res.Incomplete),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}
