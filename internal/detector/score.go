package detector

import "math"

// Signals is the structured bundle the suspicion score is computed from.
// It carries no I/O handles so the scoring policy can be tuned and tested
// in isolation.
type Signals struct {
	// SpanMinutes is the time between the earliest and latest trade
	SpanMinutes float64

	// TotalNotional is the summed USD notional of the cluster
	TotalNotional float64

	// WalletCount is the number of distinct participants
	WalletCount int

	// AvgWalletAgeDays is the mean participant account age
	AvgWalletAgeDays float64

	// Alignment is max(sells, buys) / total in [0,1]
	Alignment float64

	// SizeCV is the coefficient of variation of trade notionals
	SizeCV float64

	// RecurrentWallets counts participants that also traded other
	// instruments inside the scan window
	RecurrentWallets int
}

// Per-signal point caps. Each signal is capped independently so no single
// signal can reach the qualification threshold alone; the caps sum to 100.
const (
	TimingCap      = 30
	NotionalCap    = 20
	WalletCountCap = 15
	WalletAgeCap   = 10
	AlignmentCap   = 10
	HomogeneityCap = 10
	RecurrenceCap  = 5
)

// Band boundaries and scale factors.
const (
	// Timing bands (minutes) and their points
	timingBand1Min = 1.0
	timingBand2Min = 5.0
	timingBand3Min = 15.0
	timingBand4Min = 30.0
	timingBand2Pts = 25
	timingBand3Pts = 15
	timingBand4Pts = 8

	// Notional: 10 points per $100M, capped
	notionalReferenceUSD = 100_000_000
	notionalPtsPerRef    = 10

	// Wallet count: 4 points per distinct participant, capped
	walletCountPts = 4

	// Age bands (days) and their points; the neutral default age scores 0
	ageBand1Days = 3
	ageBand2Days = 7
	ageBand3Days = 14
	ageBand2Pts  = 7
	ageBand3Pts  = 4

	// Alignment: points accrue only above the coordination gate
	alignmentGate  = 0.80
	alignmentScale = 50 // (alignment - gate) * scale, so 1.0 earns the cap

	// Homogeneity bands on the coefficient of variation
	cvBand1 = 0.10
	cvBand2 = 0.25
	cvBand3 = 0.50
	cvBand2Pts = 6
	cvBand3Pts = 3

	// Recurrence: flat bonus once multiple participants span instruments
	recurrenceMinWallets = 2
)

// Score computes the 0-100 suspicion score for a candidate cluster.
// Monotone in each signal: tighter timing, larger notional, more wallets,
// younger wallets, higher alignment and tighter size clustering never
// decrease the result.
func Score(sig Signals) int {
	score := 0

	// Timing tightness: tiered bands, zero beyond the outer window
	switch {
	case sig.SpanMinutes < timingBand1Min:
		score += TimingCap
	case sig.SpanMinutes < timingBand2Min:
		score += timingBand2Pts
	case sig.SpanMinutes < timingBand3Min:
		score += timingBand3Pts
	case sig.SpanMinutes < timingBand4Min:
		score += timingBand4Pts
	}

	// Notional size, scaled against the reference amount
	notionalPts := int(sig.TotalNotional / notionalReferenceUSD * notionalPtsPerRef)
	score += capped(notionalPts, NotionalCap)

	// Distinct participants
	score += capped(sig.WalletCount*walletCountPts, WalletCountCap)

	// Wallet age: younger accounts are more suspicious
	switch {
	case sig.AvgWalletAgeDays < ageBand1Days:
		score += WalletAgeCap
	case sig.AvgWalletAgeDays < ageBand2Days:
		score += ageBand2Pts
	case sig.AvgWalletAgeDays < ageBand3Days:
		score += ageBand3Pts
	}

	// Directional alignment above the gate
	if sig.Alignment > alignmentGate {
		score += capped(int(math.Round((sig.Alignment-alignmentGate)*alignmentScale)), AlignmentCap)
	}

	// Trade-size homogeneity: independent actors rarely pick near-identical sizes
	switch {
	case sig.SizeCV <= cvBand1:
		score += HomogeneityCap
	case sig.SizeCV <= cvBand2:
		score += cvBand2Pts
	case sig.SizeCV <= cvBand3:
		score += cvBand3Pts
	}

	// Cross-instrument recurrence
	if sig.RecurrentWallets >= recurrenceMinWallets {
		score += RecurrenceCap
	}

	if score > 100 {
		score = 100
	}
	return score
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < 0 {
		return 0
	}
	return v
}
