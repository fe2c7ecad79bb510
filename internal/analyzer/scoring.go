package analyzer

import (
	"math"

	"copytrade-core/internal/domain"
)

// linregSlope fits an ordinary least-squares line to (x, y) pairs and
// returns the slope. Returns 0 when fewer than two distinct x values are
// present, avoiding a divide-by-zero rather than propagating NaN.
func linregSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// computeTrendAnalysis derives momentum, buy/sell balance, and a coarse
// trend classification from a window's points. Divisions guard against
// zero denominators so no NaN escapes.
func computeTrendAnalysis(points []domain.TimeSeriesPoint) domain.TrendAnalysis {
	if len(points) == 0 {
		return domain.TrendAnalysis{TrendStrength: domain.TrendNeutral}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	t0 := points[0].T
	buys, sells := 0, 0
	traders := make(map[string]struct{})
	for i, p := range points {
		xs[i] = p.T.Sub(t0).Minutes()
		ys[i] = p.Price
		if p.TxType == domain.SwapBuy {
			buys++
		} else if p.TxType == domain.SwapSell {
			sells++
		}
		if p.Trader != "" {
			traders[p.Trader] = struct{}{}
		}
	}

	momentum := linregSlope(xs, ys)

	buySellRatio := 1.0
	if sells > 0 {
		buySellRatio = float64(buys) / float64(sells)
	} else if buys > 0 {
		buySellRatio = float64(buys)
	}

	spanMinutes := xs[len(xs)-1] - xs[0]
	freq := 0.0
	if spanMinutes > 0 {
		freq = float64(len(points)) / spanMinutes
	}

	return domain.TrendAnalysis{
		PriceMomentumPerMin:  momentum,
		BuySellRatio:         buySellRatio,
		UniqueTraders:        len(traders),
		TradeFrequencyPerMin: freq,
		TrendStrength:        classifyTrendStrength(momentum, buySellRatio),
	}
}

// classifyTrendStrength buckets momentum and buy-pressure into the five
// discrete trend bands.
func classifyTrendStrength(momentumPerMin, buySellRatio float64) domain.TrendStrength {
	switch {
	case momentumPerMin > 0.05 && buySellRatio >= 2.0:
		return domain.TrendStrongBullish
	case momentumPerMin > 0.01 && buySellRatio >= 1.2:
		return domain.TrendBullish
	case momentumPerMin < -0.05 && buySellRatio <= 0.5:
		return domain.TrendStrongBearish
	case momentumPerMin < -0.01 && buySellRatio <= 0.8:
		return domain.TrendBearish
	default:
		return domain.TrendNeutral
	}
}

// finiteDiff returns the average per-step difference of a series, 0 for
// fewer than two points.
func finiteDiff(values []float64, dtMinutes []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	steps := 0
	for i := 1; i < len(values); i++ {
		dt := dtMinutes[i] - dtMinutes[i-1]
		if dt <= 0 {
			continue
		}
		sum += (values[i] - values[i-1]) / dt
		steps++
	}
	if steps == 0 {
		return 0
	}
	return sum / float64(steps)
}

// computeMathematicalAnalysis derives velocity features and the
// composite-virality buy signal from a window's points and the
// already-computed trend analysis.
func computeMathematicalAnalysis(points []domain.TimeSeriesPoint, trend domain.TrendAnalysis) domain.MathematicalAnalysis {
	if len(points) == 0 {
		return domain.MathematicalAnalysis{BuySignalStrength: domain.SignalHold}
	}

	t0 := points[0].T
	dt := make([]float64, len(points))
	progress := make([]float64, len(points))
	volume := make([]float64, len(points))
	price := make([]float64, len(points))
	var holdersSum float64
	holdersN := 0
	for i, p := range points {
		dt[i] = p.T.Sub(t0).Minutes()
		progress[i] = p.CurveProgress
		volume[i] = p.Volume
		price[i] = p.Price
		if p.Holders != nil {
			holdersSum += float64(*p.Holders)
			holdersN++
		}
	}

	progressVel := finiteDiff(progress, dt)
	volumeVel := finiteDiff(volume, dt)
	priceVel := finiteDiff(price, dt)

	holderDistribution := 0.5 // neutral proxy when no holder data is available
	if holdersN > 0 {
		avgHolders := holdersSum / float64(holdersN)
		// Higher average holder counts relative to an assumed healthy
		// floor of 200 push the proxy toward 1; clamps keep it in range.
		holderDistribution = math.Max(0, math.Min(1, avgHolders/200))
	}

	predictiveGrowth := progressVel*0.5 + volumeVel*0.3 + priceVel*0.2

	normMomentum := sigmoid(trend.PriceMomentumPerMin * 10)
	normRatio := math.Max(0, math.Min(1, trend.BuySellRatio/3))
	compositeVirality := math.Max(0, math.Min(1, 0.6*normMomentum+0.4*normRatio))

	return domain.MathematicalAnalysis{
		ProgressVelocity:   progressVel,
		VolumeVelocity:     volumeVel,
		PriceVelocity:      priceVel,
		HolderDistribution: holderDistribution,
		PredictiveGrowth:   predictiveGrowth,
		CompositeVirality:  compositeVirality,
		BuySignalStrength:  classifyBuySignalStrength(compositeVirality),
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func classifyBuySignalStrength(composite float64) domain.BuySignalStrength {
	switch {
	case composite >= 0.85:
		return domain.SignalStrongBuy
	case composite >= 0.65:
		return domain.SignalBuyWeak
	case composite <= 0.15:
		return domain.SignalStrongSell
	case composite <= 0.35:
		return domain.SignalSellWeak
	default:
		return domain.SignalHold
	}
}
