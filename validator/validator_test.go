package validator_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
	"github.com/Spyderisk/system-modeller-sub004/domain"
	"github.com/Spyderisk/system-modeller-sub004/ident"
	"github.com/Spyderisk/system-modeller-sub004/matcher"
	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

func loadDomain(t *testing.T) *domain.Model {
	t.Helper()
	m, err := domain.Load(filepath.Join("..", "domain", "testdata", "network.yaml"))
	require.NoError(t, err)
	return m
}

// networkInput: server s1 hosts p1 and p2, both use d1, p1 is on n1.
func networkInput() validator.Input {
	return validator.Input{
		Assets: []assetgraph.Asset{
			{ID: "s1", Type: "Server", Label: "Web"},
			{ID: "p1", Type: "Process", Label: "Nginx"},
			{ID: "p2", Type: "Process", Label: "Cron"},
			{ID: "d1", Type: "Data", Label: "Orders"},
			{ID: "n1", Type: "Network", Label: "LAN"},
		},
		Relations: []assetgraph.Relation{
			{From: "s1", Type: "hosts", To: "p1"},
			{From: "s1", Type: "hosts", To: "p2"},
			{From: "p1", Type: "uses", To: "d1"},
			{From: "p2", Type: "uses", To: "d1"},
			{From: "p1", Type: "connectedTo", To: "n1"},
		},
	}
}

func newValidator(t *testing.T, opts ...validator.Option) *validator.Validator {
	t.Helper()
	v, err := validator.New(loadDomain(t), opts...)
	require.NoError(t, err)
	return v
}

func TestNew_NilModel(t *testing.T) {
	_, err := validator.New(nil)
	assert.True(t, errors.Is(err, validator.ErrNilModel))
}

func TestRun(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newValidator(t, validator.WithClock(func() time.Time { return fixed }))

	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "network", a.Domain)
	assert.Equal(t, "1.0.0", a.DomainVersion)
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Empty(t, a.Incomplete)

	assert.Equal(t, 4, a.Matches)
	assert.Len(t, a.Model.Threats(), 8)
	assert.Len(t, a.Model.MisbehaviourSets(), 4)
	assert.Len(t, a.Model.ControlSets(), 5)
	assert.Len(t, a.Steps, 8)

	compliance := 0
	for _, th := range a.Model.Threats() {
		if th.Kind == threat.KindCompliance {
			compliance++
		}
	}
	assert.Equal(t, 2, compliance)
}

func TestRun_CausalChain(t *testing.T) {
	v := newValidator(t)
	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	gen := ident.NewGenerator("")
	hostLoA, ok := a.Model.MisbehaviourSet(gen.MisbehaviourSet("LossOfAvailability", "s1"))
	require.True(t, ok)
	procLoA, ok := a.Model.MisbehaviourSet(gen.MisbehaviourSet("LossOfAvailability", "p1"))
	require.True(t, ok)

	assert.Equal(t, 2, hostLoA.DirectCauses.Len(), "one overload threat per hosted process")
	assert.Equal(t, 2, hostLoA.DirectEffects.Len())
	assert.Equal(t, 1, procLoA.DirectCauses.Len())
	assert.Equal(t, hostLoA.DirectCauses.Sorted(), procLoA.RootCauses.Sorted())
	assert.Equal(t, hostLoA.DirectCauses.Sorted(), procLoA.IndirectCauses.Sorted())

	g := a.Causal()
	for _, s := range a.Steps {
		assert.Equal(t, s.Cause.Len() == 0, s.IsPrimaryThreat(), s.ID)
	}
	assert.Len(t, g.SecondaryThreats(), 2)
}

func TestRun_RiskVector(t *testing.T) {
	v := newValidator(t)
	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	assert.Equal(t, "High:3 Medium:1 Low:0", a.RiskVector.String())
	assert.Equal(t, 8, a.Report().Unresolved)
}

func TestRun_Proposals(t *testing.T) {
	v := newValidator(t)
	gen := ident.NewGenerator("")

	in := networkInput()
	in.ControlSets = []threat.ControlSetState{
		{URI: gen.ControlSet("Redundancy", "s1"), Proposed: true, WorkInProgress: true},
		{URI: "system#CS-gone", Proposed: true},
	}
	a, err := v.Run(context.Background(), in)
	require.NoError(t, err)

	resolved := 0
	for _, th := range a.Model.Threats() {
		if th.Parent == "T-HostOverload" {
			assert.True(t, th.IsResolved(), th.URI)
			assert.Equal(t, "LikelihoodLow", th.Likelihood.ID)
			resolved++
		}
	}
	assert.Equal(t, 2, resolved)
	assert.Equal(t, "High:3 Medium:0 Low:1", a.RiskVector.String())

	cs, _ := a.Model.ControlSet(gen.ControlSet("Redundancy", "s1"))
	assert.True(t, cs.WorkInProgress())

	for _, s := range a.Steps {
		th, _ := a.Model.Threat(s.ID)
		assert.Equal(t, !th.IsResolved(), s.Active)
	}
}

func TestRun_ProposalViolatingInvariant(t *testing.T) {
	v := newValidator(t)
	in := networkInput()
	in.ControlSets = []threat.ControlSetState{
		{URI: ident.NewGenerator("").ControlSet("Redundancy", "s1"), WorkInProgress: true},
	}
	_, err := v.Run(context.Background(), in)
	assert.True(t, errors.Is(err, validator.ErrInvalidInput))
	assert.True(t, errors.Is(err, threat.ErrWorkInProgressNotProposed))
}

func TestRun_Acceptances(t *testing.T) {
	v := newValidator(t)
	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	in := networkInput()
	in.Acceptances = map[string]string{}
	for _, th := range a.Model.Threats() {
		in.Acceptances[th.URI] = "accepted for the pilot"
	}
	in.Acceptances["system#T-unknown"] = "ignored"

	a, err = v.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Skipped)
	for _, th := range a.Model.Threats() {
		switch th.Kind {
		case threat.KindCompliance:
			assert.Nil(t, th.AcceptanceJustification())
			assert.False(t, th.IsResolved())
		default:
			assert.True(t, th.IsResolved())
		}
	}
}

func TestRun_ImpactAssertion(t *testing.T) {
	v := newValidator(t)
	gen := ident.NewGenerator("")
	uri := gen.MisbehaviourSet("LossOfAvailability", "s1")

	in := networkInput()
	in.ImpactLevels = map[string]string{uri: "ImpactHigh"}
	a, err := v.Run(context.Background(), in)
	require.NoError(t, err)

	ms, _ := a.Model.MisbehaviourSet(uri)
	assert.True(t, ms.ImpactLevelAsserted)
	assert.Equal(t, "RiskHigh", ms.RiskLevel.ID)

	in.ImpactLevels = map[string]string{uri: "Catastrophic"}
	a, err = v.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Skipped)
	ms, _ = a.Model.MisbehaviourSet(uri)
	assert.False(t, ms.ImpactLevelAsserted)
}

func TestRun_SkippedDecisions(t *testing.T) {
	v := newValidator(t)
	gen := ident.NewGenerator("")
	known := gen.ControlSet("Redundancy", "s1")

	in := networkInput()
	in.ControlSets = []threat.ControlSetState{
		{URI: known, Proposed: true},
		{URI: gen.ControlSet("Redundancy", "ghost"), Proposed: true},
	}
	in.Acceptances = map[string]string{"system#T-unknown": "ignored"}
	in.ImpactLevels = map[string]string{
		gen.MisbehaviourSet("LossOfAvailability", "ghost"): "ImpactHigh",
		gen.MisbehaviourSet("LossOfAvailability", "s1"):    "Catastrophic",
	}

	a, err := v.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Skipped)
	cs, ok := a.Model.ControlSet(known)
	require.True(t, ok)
	assert.True(t, cs.State().Proposed)
}

func TestRun_InvalidGraph(t *testing.T) {
	v := newValidator(t)
	in := networkInput()
	in.Relations = append(in.Relations, assetgraph.Relation{From: "s1", Type: "hosts", To: "ghost"})

	_, err := v.Run(context.Background(), in)
	assert.True(t, errors.Is(err, validator.ErrInvalidInput))
	assert.True(t, errors.Is(err, assetgraph.ErrAssetNotFound))
}

func TestRun_Deterministic(t *testing.T) {
	report := func(concurrency int) []byte {
		v := newValidator(t, validator.WithConcurrency(concurrency))
		a, err := v.Run(context.Background(), networkInput())
		require.NoError(t, err)
		data, err := json.Marshal(a.Model)
		require.NoError(t, err)
		return data
	}
	assert.JSONEq(t, string(report(1)), string(report(8)))
}

func TestRun_Budget(t *testing.T) {
	v := newValidator(t, validator.WithMaxExpansions(1))
	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	require.Len(t, a.Incomplete, 3)
	for _, inc := range a.Incomplete {
		assert.Equal(t, matcher.ReasonBudget, inc.Reason)
	}
	assert.Equal(t, "T-HostOverload", a.Incomplete[0].Threat)
	assert.Equal(t, "s1", a.Incomplete[0].Anchor)

	// Searches anchored at a process bind every role without branching.
	assert.Len(t, a.Model.Threats(), 2)
}

func TestRun_CancelledContext(t *testing.T) {
	v := newValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := v.Run(ctx, networkInput())
	require.NoError(t, err)
	assert.Len(t, a.Incomplete, 5)
	assert.Empty(t, a.Model.Threats())
}

func TestRun_Telemetry(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	v := newValidator(t,
		validator.WithTracer(tp.Tracer("test")),
		validator.WithMeter(mp.Meter("test")),
	)
	_, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["validator.Run"])
	assert.Equal(t, 5, names["matcher.Match"])

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterValue(t, rm, "validator.runs"))
	assert.Equal(t, int64(4), counterValue(t, rm, "validator.matches"))
	assert.Equal(t, int64(8), counterValue(t, rm, "validator.threats"))
	assert.Equal(t, int64(0), counterValue(t, rm, "validator.searches.incomplete"))
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return 0
}

func TestAssessment_JSONRoundTrip(t *testing.T) {
	v := newValidator(t)
	a, err := v.Run(context.Background(), networkInput())
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var back validator.Assessment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, a.RiskVector.String(), back.RiskVector.String())
	assert.Len(t, back.Model.Threats(), 8)
	assert.Equal(t, a.Report().Unresolved, back.Report().Unresolved)
}
