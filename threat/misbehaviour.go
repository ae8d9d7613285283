package threat

// MisbehaviourSet is one misbehaviour (loss of confidentiality, availability,
// and so on) located at one asset. The cause and effect sets are filled in
// from the secondary effect graph and may contain cycles.
type MisbehaviourSet struct {
	URI          string `json:"uri"`
	Misbehaviour string `json:"misbehaviour"`
	AssetURI     string `json:"asset_uri"`
	AssetLabel   string `json:"asset_label,omitempty"`

	ImpactLevel         Level `json:"impact_level"`
	Likelihood          Level `json:"likelihood"`
	RiskLevel           Level `json:"risk_level"`
	ImpactLevelAsserted bool  `json:"impact_level_asserted"`
	NormalOpEffect      bool  `json:"normal_op_effect"`

	// DirectCauses holds the threats that directly cause the misbehaviour.
	DirectCauses URISet `json:"direct_causes"`

	// IndirectCauses holds the threats further upstream.
	IndirectCauses URISet `json:"indirect_causes"`

	// RootCauses holds the primary threats upstream of the misbehaviour.
	RootCauses URISet `json:"root_causes"`

	// DirectEffects holds the threats the misbehaviour directly enables.
	DirectEffects URISet `json:"direct_effects"`
}

// NewMisbehaviourSet creates a misbehaviour set with empty cause and effect sets.
func NewMisbehaviourSet(uri, misbehaviour, assetURI string) *MisbehaviourSet {
	return &MisbehaviourSet{
		URI:            uri,
		Misbehaviour:   misbehaviour,
		AssetURI:       assetURI,
		DirectCauses:   NewURISet(),
		IndirectCauses: NewURISet(),
		RootCauses:     NewURISet(),
		DirectEffects:  NewURISet(),
	}
}
