// Package scoring turns token snapshots into classified trade signals.
// Scoring is pure and deterministic: identical snapshots always produce
// identical signals.
package scoring

import (
	"fmt"
	"math"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Sub-score caps and references. Risk sub-scores sum to at most 100.
const (
	liquiditySubCap    = 25.0
	liquidityTargetUsd = 20_000.0

	holderSubCap = 20.0
	holderTarget = 500.0

	lpBurnedSub = 15.0

	// Authority revoked earns the full sub-score; any active authority
	// earns nothing.
	authorityRevokedSub = 10.0

	stabilitySubCap = 10.0
	// Full stability credit up to 5% absolute 24h move, zero at 50%.
	stabilityFullPct = 5.0
	stabilityZeroPct = 50.0

	volumeSubCap    = 20.0
	volumeTargetUsd = 50_000.0
)

// Fixed reason thresholds. The learning model layers its adaptive
// minimums on top of these.
const (
	goodLiquidityUsd   = 10_000.0
	healthyHolderCount = 100
	whaleAvgHoldingUsd = 5_000.0
	momentumPct        = 15.0
	stableRangePct     = 10.0
	volatileRangePct   = 25.0
)

// Score computes the risk score and confidence for a token snapshot.
// Both are clipped to [0,100].
func Score(token *domain.TokenSnapshot) (riskScore, confidence float64) {
	risk := liquiditySub(token.LiquidityUsd) +
		holderSub(token.HolderCount) +
		lpSub(token.LPBurned) +
		authoritySub(token.MintAuthority) +
		authoritySub(token.FreezeAuthority) +
		stabilitySub(token.PriceChange24h)
	risk = clip(risk)

	conf := risk*0.6 + volumeSub(token.Volume24hUsd) + marketCapBonus(token.MarketCapUsd)
	return risk, clip(conf)
}

// GenerateSignal scores a snapshot and classifies it:
//   - GREEN:  confidence >= GreenThreshold AND riskScore >= 70
//   - YELLOW: confidence >= YellowThreshold AND riskScore >= 50
//   - RED:    otherwise
func GenerateSignal(token *domain.TokenSnapshot, cfg domain.TradingConfig) *domain.Signal {
	risk, conf := Score(token)

	var class domain.Classification
	switch {
	case conf >= cfg.GreenThreshold && risk >= 70:
		class = domain.ClassificationGreen
	case conf >= cfg.YellowThreshold && risk >= 50:
		class = domain.ClassificationYellow
	default:
		class = domain.ClassificationRed
	}

	recommended := 0.0
	if class != domain.ClassificationRed {
		recommended = cfg.MaxPositionSizeUsd * conf / 100
	}

	return &domain.Signal{
		TokenAddress:            token.Address,
		Classification:          class,
		Confidence:              conf,
		RiskScore:               risk,
		Reasons:                 assembleReasons(token),
		RecommendedPositionSize: recommended,
		GeneratedAtMs:           token.TimestampMs,
	}
}

func liquiditySub(liquidityUsd float64) float64 {
	if liquidityUsd <= 0 {
		return 0
	}
	return math.Min(liquiditySubCap, liquidityUsd/liquidityTargetUsd*liquiditySubCap)
}

func holderSub(holders int64) float64 {
	if holders <= 0 {
		return 0
	}
	return math.Min(holderSubCap, float64(holders)/holderTarget*holderSubCap)
}

func lpSub(burned bool) float64 {
	if burned {
		return lpBurnedSub
	}
	return 0
}

func authoritySub(authority *string) float64 {
	if authority == nil {
		return authorityRevokedSub
	}
	return 0
}

func stabilitySub(change24hPct float64) float64 {
	abs := math.Abs(change24hPct)
	if abs <= stabilityFullPct {
		return stabilitySubCap
	}
	if abs >= stabilityZeroPct {
		return 0
	}
	return stabilitySubCap * (stabilityZeroPct - abs) / (stabilityZeroPct - stabilityFullPct)
}

func volumeSub(volumeUsd float64) float64 {
	if volumeUsd <= 0 {
		return 0
	}
	return math.Min(volumeSubCap, volumeUsd/volumeTargetUsd*volumeSubCap)
}

// marketCapBonus rewards the mid-cap band where simulated entries have
// room to move without being rugs or majors.
func marketCapBonus(marketCapUsd float64) float64 {
	switch {
	case marketCapUsd >= 100_000 && marketCapUsd < 1_000_000:
		return 20
	case marketCapUsd >= 50_000 && marketCapUsd < 10_000_000:
		return 10
	case marketCapUsd >= 10_000:
		return 5
	default:
		return 0
	}
}

// assembleReasons builds the ordered factor list for a snapshot.
func assembleReasons(token *domain.TokenSnapshot) []domain.Reason {
	var reasons []domain.Reason

	if token.LiquidityUsd >= goodLiquidityUsd {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorLiquidity, Positive: true,
			Text: fmt.Sprintf("Good liquidity ($%.0f)", token.LiquidityUsd),
		})
	} else {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorLiquidity,
			Text:   fmt.Sprintf("Low liquidity ($%.0f)", token.LiquidityUsd),
		})
	}

	if token.HolderCount >= healthyHolderCount {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorHolders, Positive: true,
			Text: fmt.Sprintf("Healthy holder count (%d)", token.HolderCount),
		})
	} else {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorHolders,
			Text:   fmt.Sprintf("Low holder count (%d)", token.HolderCount),
		})
	}

	// Average holding above the whale threshold suggests concentrated supply.
	if token.HolderCount > 0 && token.MarketCapUsd/float64(token.HolderCount) > whaleAvgHoldingUsd {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorHolders,
			Text:   "Whale concentration risk",
		})
	}

	if token.LPBurned {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorLPBurned, Positive: true,
			Text: "LP burned",
		})
	} else {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorLPBurned,
			Text:   "LP not burned",
		})
	}

	if token.MintAuthority == nil && token.FreezeAuthority == nil {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorAuthorityRevoked, Positive: true,
			Text: "Authorities revoked",
		})
	} else if authoritiesProgramHeld(token.MintAuthority, token.FreezeAuthority) {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorAuthorityRevoked,
			Text:   "Active authorities (program-held)",
		})
	} else {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorAuthorityRevoked,
			Text:   "Active authorities",
		})
	}

	abs := math.Abs(token.PriceChange24h)
	if abs <= stableRangePct {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorPriceStability, Positive: true,
			Text: "Stable price action",
		})
	} else if abs > volatileRangePct {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorPriceStability,
			Text:   fmt.Sprintf("High volatility (%.1f%% 24h)", token.PriceChange24h),
		})
	}

	if token.PriceChange24h >= momentumPct {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorMomentum, Positive: true,
			Text: fmt.Sprintf("Strong momentum (+%.1f%% 24h)", token.PriceChange24h),
		})
	} else if token.PriceChange24h <= -momentumPct {
		reasons = append(reasons, domain.Reason{
			Factor: domain.FactorMomentum,
			Text:   fmt.Sprintf("Negative momentum (%.1f%% 24h)", token.PriceChange24h),
		})
	}

	return reasons
}

// authoritiesProgramHeld reports whether every active authority sits
// off-curve, meaning it is controlled by a program rather than a
// wallet keypair. Malformed addresses count as wallet-held.
func authoritiesProgramHeld(authorities ...*string) bool {
	active := 0
	for _, a := range authorities {
		if a == nil {
			continue
		}
		active++
		onCurve, err := solana.IsOnCurve(*a)
		if err != nil || onCurve {
			return false
		}
	}
	return active > 0
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
