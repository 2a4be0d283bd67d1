package domain

// Classification is the trade recommendation tier for a token.
type Classification string

// Classification constants.
const (
	ClassificationGreen  Classification = "GREEN"
	ClassificationYellow Classification = "YELLOW"
	ClassificationRed    Classification = "RED"
)

// Downgrade returns the classification one tier lower.
// RED stays RED.
func (c Classification) Downgrade() Classification {
	switch c {
	case ClassificationGreen:
		return ClassificationYellow
	case ClassificationYellow:
		return ClassificationRed
	default:
		return ClassificationRed
	}
}

// Factor identifies a scoring factor. Factors couple the scorer to the
// learning model: weight adjustments key on the factors present in the
// entry signal's reasons, never on reason text.
type Factor string

// Factor constants.
const (
	FactorLiquidity        Factor = "LIQUIDITY"
	FactorHolders          Factor = "HOLDERS"
	FactorLPBurned         Factor = "LP_BURNED"
	FactorAuthorityRevoked Factor = "AUTHORITY_REVOKED"
	FactorPriceStability   Factor = "PRICE_STABILITY"
	FactorMomentum         Factor = "MOMENTUM"
)

// KnownFactors lists every factor the scorer can emit, in weight-vector order.
var KnownFactors = []Factor{
	FactorLiquidity,
	FactorHolders,
	FactorLPBurned,
	FactorAuthorityRevoked,
	FactorPriceStability,
	FactorMomentum,
}

// Reason is one entry in a signal's ordered factor list.
type Reason struct {
	Factor   Factor
	Positive bool   // true when the factor supports the trade
	Text     string // human-readable description
}

// Signal is the scored classification of one token snapshot.
type Signal struct {
	TokenAddress            string
	Classification          Classification
	Confidence              float64 // [0,100]
	RiskScore               float64 // [0,100]
	Reasons                 []Reason
	RecommendedPositionSize float64 // USD
	GeneratedAtMs           int64
}

// Factors returns the distinct factors present in the signal's reasons,
// preserving first-occurrence order.
func (s *Signal) Factors() []Factor {
	seen := make(map[Factor]struct{}, len(s.Reasons))
	var out []Factor
	for _, r := range s.Reasons {
		if _, ok := seen[r.Factor]; ok {
			continue
		}
		seen[r.Factor] = struct{}{}
		out = append(out, r.Factor)
	}
	return out
}

// HasFactor reports whether any reason carries the given factor.
func (s *Signal) HasFactor(f Factor) bool {
	for _, r := range s.Reasons {
		if r.Factor == f {
			return true
		}
	}
	return false
}
