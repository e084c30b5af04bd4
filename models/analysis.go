package models

// Attack type labels assigned by the pattern classifier.
const (
	AttackHTTPFlood  = "HTTP Flood"
	AttackBotAction  = "Bot Activity"
	AttackVolumetric = "Volumetric Attack"
	AttackSYNFlood   = "SYN Flood"
	AttackUDPFlood   = "UDP Flood"
)

// AttackAnalysis is the immutable result of classifying one traffic event
// against the source's behavioral profile. The zero AttackType means no
// attack pattern was detected.
type AttackAnalysis struct {
	IP              string       `json:"ip"`
	RequestCount    int64        `json:"request_count"`
	Duration        float64      `json:"duration"`
	PatternDetected bool         `json:"pattern_detected"`
	AttackType      string       `json:"attack_type,omitempty"`
	Confidence      float64      `json:"confidence"`
	ThreatLevel     float64      `json:"threat_level"`
	Blocked         bool         `json:"blocked"`
	Reason          string       `json:"reason,omitempty"`
	Location        *GeoLocation `json:"location,omitempty"`
}

// BlockingStats aggregates the blocking table for the control surface.
type BlockingStats struct {
	TotalBlocked     int64            `json:"total_blocked"`
	CurrentlyBlocked int64            `json:"currently_blocked"`
	AutoBlocked      int64            `json:"auto_blocked"`
	ManualBlocked    int64            `json:"manual_blocked"`
	Unblocked        int64            `json:"unblocked"`
	RecentBlocks24h  int64            `json:"recent_blocks_24h"`
	AttackTypes      map[string]int64 `json:"attack_types"`
	ThreatLevels     map[string]int64 `json:"threat_levels"`
	BlockingRate     float64          `json:"blocking_rate"`
}
