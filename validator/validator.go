package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/causal"
	"github.com/Spyderisk/system-modeller-sub004/domain"
	"github.com/Spyderisk/system-modeller-sub004/ident"
	"github.com/Spyderisk/system-modeller-sub004/matcher"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

var (
	// ErrNilModel is returned by New without a domain model.
	ErrNilModel = errors.New("domain model is required")

	// ErrInvalidInput is returned when the system model cannot be built.
	ErrInvalidInput = errors.New("invalid system model")
)

// Input is the system model to validate plus the caller's decisions about it.
type Input struct {
	Assets    []assetgraph.Asset    `json:"assets"`
	Relations []assetgraph.Relation `json:"relations"`

	// ControlSets holds the proposed and work in progress flags of control
	// sets from earlier runs. Entries for control sets that no longer
	// exist are ignored.
	ControlSets []threat.ControlSetState `json:"control_sets,omitempty"`

	// Acceptances maps threat URIs to acceptance justifications.
	Acceptances map[string]string `json:"acceptances,omitempty"`

	// ImpactLevels maps misbehaviour set URIs to asserted impact level IDs.
	ImpactLevels map[string]string `json:"impact_levels,omitempty"`
}

// Incomplete records a search that stopped before exhausting its space.
type Incomplete struct {
	Threat  string `json:"threat"`
	Pattern string `json:"pattern"`
	Anchor  string `json:"anchor"`
	Reason  string `json:"reason"`
}

// Assessment is the outcome of one validation run.
type Assessment struct {
	ID            string    `json:"id"`
	Domain        string    `json:"domain"`
	DomainVersion string    `json:"domain_version"`
	CreatedAt     time.Time `json:"created_at"`

	Model *threat.Model `json:"model"`

	// Steps is the secondary effect graph, one step per threat.
	Steps []causal.Step `json:"steps"`

	RiskScale  threat.Scale      `json:"risk_scale"`
	RiskVector threat.RiskVector `json:"risk_vector"`

	// Matches counts the distinct pattern matches threats were found at.
	Matches int `json:"matches"`

	// Incomplete lists the searches cut short by the deadline or the
	// expansion bound. An assessment with entries here may miss threats.
	Incomplete []Incomplete `json:"incomplete,omitempty"`

	// Skipped counts input decisions that named no control set, threat,
	// misbehaviour set or impact level of this assessment.
	Skipped int `json:"skipped,omitempty"`
}

// Report summarises the assessment's threats.
func (a *Assessment) Report() threat.Report {
	return threat.NewReport(a.Model, a.RiskScale)
}

// Causal rebuilds the secondary effect graph from Steps.
func (a *Assessment) Causal() *causal.Graph {
	return causal.Build(a.Steps)
}

// Validator finds the threats of a domain model in system models.
// Patterns are compiled once in New; a Validator is safe for concurrent use.
type Validator struct {
	model     *domain.Model
	templates map[string]*pattern.Template
	gen       *ident.Generator
	matcher   *matcher.Matcher
	metrics   *metrics
	cfg       config
}

// New creates a Validator for m.
func New(m *domain.Model, opts ...Option) (*Validator, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var compileOpts []pattern.CompileOption
	if cfg.policy != nil {
		compileOpts = append(compileOpts, pattern.WithPresencePolicy(cfg.policy))
	}
	templates, err := m.Templates(compileOpts...)
	if err != nil {
		return nil, err
	}

	met, err := newMetrics(cfg.meter)
	if err != nil {
		return nil, err
	}

	return &Validator{
		model:     m,
		templates: templates,
		gen:       ident.NewGenerator(cfg.namespace),
		matcher: matcher.New(
			matcher.WithLogger(cfg.logger),
			matcher.WithTracer(cfg.tracer),
			matcher.WithMaxExpansions(cfg.maxExpansions),
		),
		metrics: met,
		cfg:     cfg,
	}, nil
}

// Domain returns the domain model the validator was built for.
func (v *Validator) Domain() *domain.Model { return v.model }

// search is one (threat, anchor) unit of work.
type search struct {
	def    domain.ThreatDefinition
	tmpl   *pattern.Template
	anchor string
	result *matcher.Result
}

// Run validates a system model. Searches run concurrently, one per threat
// definition and asset qualifying for its threatened role; their matches are
// merged in a fixed order so the outcome does not depend on scheduling.
//
// Running out of time is not an error: the searches cut short are listed in
// Assessment.Incomplete.
func (v *Validator) Run(ctx context.Context, in Input) (*Assessment, error) {
	start := v.cfg.now()
	ctx, span := v.cfg.tracer.Start(ctx, "validator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", v.model.Name),
		attribute.String("domain.version", v.model.Version),
		attribute.Int("assets", len(in.Assets)),
		attribute.Int("relations", len(in.Relations)),
	)

	a, err := v.run(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.CreatedAt = start.UTC()

	span.SetAttributes(
		attribute.String("assessment.id", a.ID),
		attribute.Int("matches", a.Matches),
		attribute.Int("threats", len(a.Model.Threats())),
		attribute.Int("incomplete", len(a.Incomplete)),
	)
	span.SetStatus(codes.Ok, "")
	v.metrics.record(ctx, a, v.cfg.now().Sub(start))

	v.cfg.logger.Info("validation complete",
		"assessment", a.ID,
		"domain", v.model.Key(),
		"threats", len(a.Model.Threats()),
		"matches", a.Matches,
		"incomplete", len(a.Incomplete),
	)
	return a, nil
}

func (v *Validator) run(ctx context.Context, in Input) (*Assessment, error) {
	g, err := assetgraph.FromModel(in.Assets, in.Relations)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	v.model.AssignRoles(g)

	searches := v.plan(g)
	if err := v.search(ctx, g, searches); err != nil {
		return nil, err
	}

	a := &Assessment{
		ID:            uuid.NewString(),
		Domain:        v.model.Name,
		DomainVersion: v.model.Version,
		Model:         threat.NewModel(),
		RiskScale:     v.model.Levels.Risk.Sorted(),
	}

	inst := domain.NewInstantiator(v.model, v.gen, v.cfg.logger)
	seen := make(map[string]bool)
	for _, s := range searches {
		if s.result.Incomplete {
			a.Incomplete = append(a.Incomplete, Incomplete{
				Threat:  s.def.ID,
				Pattern: s.def.Pattern,
				Anchor:  s.anchor,
				Reason:  s.result.Reason,
			})
		}
		for _, match := range s.result.Matches {
			if !seen[match.Key()] {
				seen[match.Key()] = true
				a.Matches++
			}
			if _, _, err := inst.Instantiate(s.def, match, g, a.Model); err != nil {
				return nil, err
			}
		}
	}

	skipped, err := v.applyDecisions(a.Model, in)
	if err != nil {
		return nil, err
	}
	a.Skipped = skipped

	steps := causal.StepsFromModel(a.Model)
	causal.Build(steps).Annotate(a.Model.MisbehaviourSets())
	a.Steps = steps

	assessRisk(v.model, a.Model)
	a.RiskVector = threat.NewRiskVector(a.RiskScale, a.Model.MisbehaviourSets())
	return a, nil
}

// plan lists the searches in threat definition order, then anchor order.
func (v *Validator) plan(g *assetgraph.Graph) []*search {
	var out []*search
	for _, def := range v.model.Threats {
		tmpl := v.templates[def.Pattern]
		for _, n := range g.WithRole(def.Threatens) {
			if !tmpl.Accepts(def.Threatens, n) {
				continue
			}
			out = append(out, &search{def: def, tmpl: tmpl, anchor: n.ID})
		}
	}
	return out
}

func (v *Validator) search(ctx context.Context, g *assetgraph.Graph, searches []*search) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(v.cfg.concurrency)

	for _, s := range searches {
		eg.Go(func() error {
			sctx := egCtx
			if v.cfg.searchTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(egCtx, v.cfg.searchTimeout)
				defer cancel()
			}
			res, err := v.matcher.Match(sctx, g, s.tmpl, &matcher.Anchor{Role: s.def.Threatens, AssetID: s.anchor})
			if err != nil {
				return fmt.Errorf("threat %s at %s: %w", s.def.ID, s.anchor, err)
			}
			s.result = res
			return nil
		})
	}
	return eg.Wait()
}

// applyDecisions restores control set states, acceptances and asserted
// impact levels from the input. Decisions naming something the assessment
// does not have are skipped and counted. Only an inconsistent control set
// state fails the run.
func (v *Validator) applyDecisions(m *threat.Model, in Input) (skipped int, err error) {
	applied, err := m.ApplyStates(in.ControlSets)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	skipped = len(in.ControlSets) - applied

	for uri, text := range in.Acceptances {
		t, ok := m.Threat(uri)
		if !ok {
			v.cfg.logger.Debug("ignoring acceptance of unknown threat", "threat", uri)
			skipped++
			continue
		}
		t.SetAcceptanceJustification(v.cfg.logger, &text)
	}

	for uri, levelID := range in.ImpactLevels {
		ms, ok := m.MisbehaviourSet(uri)
		if !ok {
			v.cfg.logger.Debug("ignoring impact level of unknown misbehaviour set", "misbehaviour_set", uri)
			skipped++
			continue
		}
		level, ok := v.model.Levels.Impact.Lookup(levelID)
		if !ok {
			v.cfg.logger.Warn("ignoring unknown impact level", "misbehaviour_set", uri, "level", levelID)
			skipped++
			continue
		}
		ms.ImpactLevel = level
		ms.ImpactLevelAsserted = true
	}
	if skipped > 0 {
		v.cfg.logger.Info("skipped input decisions", "count", skipped)
	}
	return skipped, nil
}
