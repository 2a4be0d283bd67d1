package domain

// MaxWeight bounds every weight-vector entry. Renormalization keeps
// weights in (0, MaxWeight] after every outcome.
const MaxWeight = 3.0

// WeightVector holds the multiplicative adjustment factor learned for
// each scoring factor.
type WeightVector map[Factor]float64

// NewWeightVector returns a weight vector with every known factor at 1.0.
func NewWeightVector() WeightVector {
	w := make(WeightVector, len(KnownFactors))
	for _, f := range KnownFactors {
		w[f] = 1.0
	}
	return w
}

// Clone returns a deep copy.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for f, v := range w {
		out[f] = v
	}
	return out
}

// Max returns the largest weight in the vector.
func (w WeightVector) Max() float64 {
	var max float64
	for _, v := range w {
		if v > max {
			max = v
		}
	}
	return max
}

// AdaptiveThresholds are decision boundaries that drift toward the
// profile of recent winning trades via exponential smoothing.
type AdaptiveThresholds struct {
	MinLiquidityUsd float64
	MinHolders      int64
	MinVolume24hUsd float64
}

// ModelCounters are the running trade statistics of the learning model.
type ModelCounters struct {
	TotalTrades    int64
	WinningTrades  int64
	LosingTrades   int64
	AverageWinPct  float64
	AverageLossPct float64
	WinRate        float64 // winning / total
}

// ModelState is the persistable state of the learning model.
// SaveModel/LoadModel round-trips must preserve it exactly.
type ModelState struct {
	Weights    WeightVector
	Thresholds AdaptiveThresholds
	Counters   ModelCounters
	UpdatedAt  int64 // Unix timestamp in milliseconds
}

// Clone returns a deep copy.
func (s *ModelState) Clone() *ModelState {
	if s == nil {
		return nil
	}
	out := *s
	out.Weights = s.Weights.Clone()
	return &out
}
