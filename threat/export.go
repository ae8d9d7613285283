package threat

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportFormat represents the format for exporting a threat report.
type ExportFormat string

const (
	// FormatJSON exports the report as indented JSON.
	FormatJSON ExportFormat = "json"

	// FormatCSV exports one row per threat.
	FormatCSV ExportFormat = "csv"
)

// IsValid returns true if the export format is valid.
func (f ExportFormat) IsValid() bool {
	switch f {
	case FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// String returns the string representation of the export format.
func (f ExportFormat) String() string { return string(f) }

// FileExtension returns the file extension for the export format.
func (f ExportFormat) FileExtension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	default:
		return ""
	}
}

// MimeType returns the MIME type for the export format.
func (f ExportFormat) MimeType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// ParseExportFormat parses a string into an ExportFormat value.
func ParseExportFormat(s string) (ExportFormat, error) {
	f := ExportFormat(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid export format: %s", s)
	}
	return f, nil
}

// StrategySummary describes one control strategy as it applies to a threat.
type StrategySummary struct {
	URI     string       `json:"uri"`
	Type    StrategyType `json:"type"`
	Enabled bool         `json:"enabled"`
}

// ThreatSummary is the reporting view of a threat.
type ThreatSummary struct {
	URI             string            `json:"uri"`
	Label           string            `json:"label,omitempty"`
	Parent          string            `json:"parent"`
	Kind            Kind              `json:"kind"`
	Pattern         string            `json:"pattern"`
	ThreatensAssets []string          `json:"threatens_assets"`
	Secondary       bool              `json:"secondary"`
	Accepted        bool              `json:"accepted"`
	Resolved        bool              `json:"resolved"`
	Likelihood      string            `json:"likelihood,omitempty"`
	Risk            string            `json:"risk,omitempty"`
	Strategies      []StrategySummary `json:"strategies"`
}

// Report summarises the threats of a model.
type Report struct {
	Threats    []ThreatSummary `json:"threats"`
	Resolved   int             `json:"resolved"`
	Unresolved int             `json:"unresolved"`
	RiskVector RiskVector      `json:"risk_vector"`
}

// NewReport builds a report over m. The risk vector is tallied over the
// model's misbehaviour sets against riskScale.
func NewReport(m *Model, riskScale Scale) Report {
	r := Report{RiskVector: NewRiskVector(riskScale, m.MisbehaviourSets())}
	for _, t := range m.Threats() {
		s := ThreatSummary{
			URI:             t.URI,
			Label:           t.Label,
			Parent:          t.Parent,
			Kind:            t.Kind,
			Pattern:         t.Pattern.Pattern,
			ThreatensAssets: t.ThreatensAssets.Sorted(),
			Secondary:       t.IsSecondaryEffect(),
			Accepted:        t.acceptance != nil,
			Resolved:        t.IsResolved(),
			Likelihood:      t.Likelihood.String(),
			Risk:            t.Risk.String(),
			Strategies:      []StrategySummary{},
		}
		for _, csg := range t.ControlStrategies() {
			s.Strategies = append(s.Strategies, StrategySummary{
				URI:     csg.URI,
				Type:    csg.Type(t.URI),
				Enabled: csg.IsEnabled(),
			})
		}
		if s.Resolved {
			r.Resolved++
		} else {
			r.Unresolved++
		}
		r.Threats = append(r.Threats, s)
	}
	return r
}

var csvHeader = []string{
	"uri", "label", "parent", "kind", "pattern", "threatens_assets",
	"secondary", "accepted", "resolved", "likelihood", "risk", "enabled_strategies",
}

// Export writes r to w in the given format.
func Export(w io.Writer, format ExportFormat, r Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, t := range r.Threats {
			var enabled []string
			for _, s := range t.Strategies {
				if s.Enabled {
					enabled = append(enabled, s.URI)
				}
			}
			row := []string{
				t.URI,
				t.Label,
				t.Parent,
				t.Kind.String(),
				t.Pattern,
				strings.Join(t.ThreatensAssets, ";"),
				strconv.FormatBool(t.Secondary),
				strconv.FormatBool(t.Accepted),
				strconv.FormatBool(t.Resolved),
				t.Likelihood,
				t.Risk,
				strings.Join(enabled, ";"),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("invalid export format: %s", format)
	}
}
