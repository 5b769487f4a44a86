package model

import "math"

// DisparateImpactFloor is the four-fifths rule boundary. Mean disparate
// impact ratios at or above it carry no score penalty; ratios below it
// indicate adverse impact under the EEOC guideline.
const DisparateImpactFloor = 0.8

// FairnessStatus is the verdict band derived from the fairness score.
type FairnessStatus int

const (
	// StatusGood indicates the model shows no substantial discrimination
	// signal (score 80 or above).
	StatusGood FairnessStatus = iota

	// StatusNeedsReview indicates moderate discrimination signals that
	// warrant a human look (score 60 to 79).
	StatusNeedsReview

	// StatusConcerning indicates strong discrimination signals
	// (score below 60).
	StatusConcerning
)

// String returns a human-readable representation of the status.
func (s FairnessStatus) String() string {
	switch s {
	case StatusGood:
		return "GOOD"
	case StatusNeedsReview:
		return "NEEDS REVIEW"
	case StatusConcerning:
		return "CONCERNING"
	default:
		return "UNKNOWN"
	}
}

// Score band boundaries for the status verdict.
const (
	// scoreGoodThreshold is the minimum score for StatusGood.
	scoreGoodThreshold = 80
	// scoreReviewThreshold is the minimum score for StatusNeedsReview.
	scoreReviewThreshold = 60
)

// Penalty policy for the fairness score. Each term subtracts from a
// perfect score of 100; three of the four terms are capped so that no
// single metric can dominate the verdict on its own.
const (
	// meanQidPenaltyWeight scales the mean QID (in bits) penalty.
	meanQidPenaltyWeight = 15.0
	// meanQidPenaltyCap bounds the mean QID penalty.
	meanQidPenaltyCap = 30.0

	// pctDiscriminatoryPenaltyWeight scales the penalty for the share of
	// analyzed samples flagged discriminatory (0 to 100).
	pctDiscriminatoryPenaltyWeight = 0.3
	// pctDiscriminatoryPenaltyCap bounds the breadth penalty.
	pctDiscriminatoryPenaltyCap = 30.0

	// disparateImpactPenaltyWeight scales the penalty per unit of ratio
	// shortfall below DisparateImpactFloor. This term has no cap.
	disparateImpactPenaltyWeight = 50.0

	// maxQidPenaltyWeight scales the worst-case QID penalty.
	maxQidPenaltyWeight = 5.0
	// maxQidPenaltyCap bounds the worst-case penalty.
	maxQidPenaltyCap = 20.0
)

// FairnessScore computes the 0-100 fairness score from the QID analysis
// aggregates. The score starts at 100 and accumulates penalties for mean
// discrimination, breadth of discrimination, disparate impact below the
// four-fifths threshold, and the worst single-sample QID.
//
// The function is pure: the same inputs always yield the same integer.
// Callers that hold a QidMetrics should use its Score method instead.
func FairnessScore(meanQid, maxQid, pctDiscriminatory, meanDisparateImpact float64) int {
	score := 100.0

	score -= math.Min(meanQid*meanQidPenaltyWeight, meanQidPenaltyCap)
	score -= math.Min(pctDiscriminatory*pctDiscriminatoryPenaltyWeight, pctDiscriminatoryPenaltyCap)

	if meanDisparateImpact < DisparateImpactFloor {
		score -= (DisparateImpactFloor - meanDisparateImpact) * disparateImpactPenaltyWeight
	}

	score -= math.Min(maxQid*maxQidPenaltyWeight, maxQidPenaltyCap)

	score = math.Round(math.Max(0, score))
	if score > 100 {
		score = 100
	}
	return int(score)
}

// StatusForScore maps a fairness score to its verdict band.
func StatusForScore(score int) FairnessStatus {
	switch {
	case score >= scoreGoodThreshold:
		return StatusGood
	case score >= scoreReviewThreshold:
		return StatusNeedsReview
	default:
		return StatusConcerning
	}
}
