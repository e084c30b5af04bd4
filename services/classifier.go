package services

import (
	"time"

	"netsentry/models"
)

// Classification thresholds. The evaluation order encodes precedence when
// multiple conditions hold and must not be reordered.
const (
	minRequestsForAnalysis = 10
	floodRateThreshold     = 100.0
	floodRateCeiling       = 200.0
	botIntervalStdDev      = 0.1
	botMinRequests         = 50
	volumetricAvgBytes     = 1_000_000.0
	volumetricBytesCeiling = 2_000_000.0
)

// BlockChecker is the read-only view of the blocking policy the classifier
// needs to short-circuit already-blocked sources.
type BlockChecker interface {
	IsBlocked(ip string) bool
}

// PatternClassifier derives attack type, confidence and threat level from a
// traffic profile. It is purely computational: no I/O, no storage.
type PatternClassifier struct {
	blocks BlockChecker
}

func NewPatternClassifier(blocks BlockChecker) *PatternClassifier {
	return &PatternClassifier{blocks: blocks}
}

// Classify evaluates a profile snapshot against the attack heuristics.
// Sources that are already actively blocked short-circuit without
// computing statistics. Confidence and threat level are intentionally equal
// in every branch.
func (c *PatternClassifier) Classify(snap ProfileSnapshot, now time.Time) models.AttackAnalysis {
	analysis := models.AttackAnalysis{
		IP:           snap.Address,
		RequestCount: snap.RequestCount,
		Duration:     now.Sub(snap.FirstSeen).Seconds(),
	}

	if c.blocks != nil && c.blocks.IsBlocked(snap.Address) {
		analysis.Blocked = true
		analysis.Reason = "IP is currently blocked"
		return analysis
	}

	if snap.RequestCount <= minRequestsForAnalysis {
		return analysis
	}

	duration := analysis.Duration
	if duration <= 0 {
		// Zero-length lifetime would make the rate unbounded; bias toward
		// no detection rather than an incorrect block.
		return analysis
	}

	rate := float64(snap.RequestCount) / duration

	switch {
	case rate > floodRateThreshold:
		analysis.PatternDetected = true
		analysis.AttackType = models.AttackHTTPFlood
		analysis.Confidence = minFloat(rate/floodRateCeiling, 1.0)

	case snap.IntervalStdDev < botIntervalStdDev && snap.RequestCount > botMinRequests:
		analysis.PatternDetected = true
		analysis.AttackType = models.AttackBotAction
		analysis.Confidence = 0.8

	case snap.AvgBytes > volumetricAvgBytes:
		analysis.PatternDetected = true
		analysis.AttackType = models.AttackVolumetric
		analysis.Confidence = minFloat(snap.AvgBytes/volumetricBytesCeiling, 1.0)
	}

	analysis.ThreatLevel = analysis.Confidence
	return analysis
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
