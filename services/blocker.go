package services

import (
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"netsentry/models"
	"netsentry/system"
)

// Attack types severe enough to auto-block at a lower threat threshold.
var criticalAttackTypes = map[string]bool{
	models.AttackHTTPFlood:  true,
	models.AttackSYNFlood:   true,
	models.AttackUDPFlood:   true,
	models.AttackVolumetric: true,
}

// Auto-block thresholds.
const (
	highThreatThreshold     = 0.8
	criticalTypeThreshold   = 0.6
	repeatOffenderThreshold = 0.5
)

// IPBlocker owns the block/unblock lifecycle and its persisted record.
// The in-memory active set, guarded by mu, is the linearization point for
// concurrent block/unblock calls on the same address; the database row is
// the durable copy. Storage errors are logged and surfaced as false/empty
// results, never raised to the dispatcher.
type IPBlocker struct {
	db       *gorm.DB
	blockTTL time.Duration

	mu sync.Mutex
	// active maps ip -> blocked_at of the currently active record. The
	// timestamp identifies the specific block so a sweep cannot deactivate
	// a newer block that superseded the one whose TTL elapsed.
	active map[string]time.Time

	enforcer FirewallEnforcer
	webhook  *WebhookService
	now      func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewIPBlocker(db *gorm.DB, blockTTL time.Duration) *IPBlocker {
	b := &IPBlocker{
		db:       db,
		blockTTL: blockTTL,
		active:   make(map[string]time.Time),
		enforcer: &NoopEnforcer{},
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	b.loadActive()
	return b
}

// SetServices connects the enforcement sink and alerting.
func (b *IPBlocker) SetServices(enforcer FirewallEnforcer, webhook *WebhookService) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if enforcer != nil {
		b.enforcer = enforcer
	}
	b.webhook = webhook
}

func (b *IPBlocker) loadActive() {
	var records []models.BlockRecord
	if err := b.db.Where("is_active = ?", true).Find(&records).Error; err != nil {
		system.Error("Failed to load active blocks: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range records {
		b.active[rec.IP] = rec.BlockedAt
	}
	system.Info("Loaded %d active blocks from database", len(records))
}

// IsBlocked reports whether an address has an active block.
func (b *IPBlocker) IsBlocked(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[ip]
	return ok
}

// ShouldAutoBlock is the pure auto-block decision: high threat level, a
// critical attack type above the lower threshold, or a repeat offender
// (previously blocked, now unblocked) at medium threat.
func (b *IPBlocker) ShouldAutoBlock(ip string, threatLevel float64, attackType string) bool {
	if threatLevel >= highThreatThreshold {
		return true
	}

	if criticalAttackTypes[attackType] && threatLevel >= criticalTypeThreshold {
		return true
	}

	if threatLevel >= repeatOffenderThreshold && b.hasInactiveRecord(ip) {
		return true
	}

	return false
}

func (b *IPBlocker) hasInactiveRecord(ip string) bool {
	var count int64
	err := b.db.Model(&models.BlockRecord{}).
		Where("ip = ? AND is_active = ?", ip, false).
		Count(&count).Error
	if err != nil {
		system.Error("Failed to check block history for %s: %v", ip, err)
		return false
	}
	return count > 0
}

// BlockIP activates a block for an address. Returns false without side
// effects if the address is already actively blocked: exactly one of any
// set of concurrent callers performs the insert.
func (b *IPBlocker) BlockIP(ip, reason string, threatLevel float64, attackType string, autoBlocked bool) bool {
	if ip == "" {
		return false
	}

	b.mu.Lock()
	if _, exists := b.active[ip]; exists {
		b.mu.Unlock()
		system.Warn("IP %s is already blocked", ip)
		return false
	}

	now := b.now()
	expires := now.Add(b.blockTTL)
	record := models.BlockRecord{
		IP:          ip,
		BlockedAt:   now,
		Reason:      reason,
		ThreatLevel: threatLevel,
		AttackType:  attackType,
		AutoBlocked: autoBlocked,
		ExpiresAt:   &expires,
		UnblockedAt: nil,
		IsActive:    true,
	}

	// Insert-or-replace keeps the one-row-per-ip invariant when an address
	// with an old inactive record is blocked again.
	err := b.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
	if err != nil {
		b.mu.Unlock()
		system.Error("Failed to persist block for %s: %v", ip, err)
		return false
	}

	b.active[ip] = now
	enforcer := b.enforcer
	webhook := b.webhook
	b.mu.Unlock()

	system.Info("Blocked IP %s - Reason: %s, Threat Level: %.2f", ip, reason, threatLevel)

	// Enforcement and alerting are fire-and-forget; failures never roll
	// back the persisted record.
	go func() {
		if err := enforcer.Block(ip); err != nil {
			system.Warn("Firewall enforcement failed for %s: %v", ip, err)
		}
	}()
	if webhook != nil {
		go webhook.SendBlockAlert(ip, attackType, threatLevel, reason, autoBlocked)
	}

	return true
}

// UnblockIP deactivates a block, retaining the record with unblocked_at set.
// Returns false if the address is not currently blocked.
func (b *IPBlocker) UnblockIP(ip string) bool {
	b.mu.Lock()
	if _, exists := b.active[ip]; !exists {
		b.mu.Unlock()
		system.Warn("IP %s is not currently blocked", ip)
		return false
	}

	now := b.now()
	err := b.db.Model(&models.BlockRecord{}).
		Where("ip = ? AND is_active = ?", ip, true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"unblocked_at": now,
			"expires_at":   nil,
		}).Error
	if err != nil {
		b.mu.Unlock()
		system.Error("Failed to unblock %s: %v", ip, err)
		return false
	}

	delete(b.active, ip)
	enforcer := b.enforcer
	b.mu.Unlock()

	system.Info("Unblocked IP %s", ip)

	go func() {
		if err := enforcer.Unblock(ip); err != nil {
			system.Warn("Firewall rule removal failed for %s: %v", ip, err)
		}
	}()

	return true
}

// GetBlockedIPs returns block records, newest first. With activeOnly false
// the retained inactive records are included.
func (b *IPBlocker) GetBlockedIPs(activeOnly bool) []models.BlockRecord {
	query := b.db.Order("blocked_at DESC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var records []models.BlockRecord
	if err := query.Find(&records).Error; err != nil {
		system.Error("Failed to list blocked IPs: %v", err)
		return []models.BlockRecord{}
	}
	return records
}

// Statistics aggregates the blocking table.
func (b *IPBlocker) Statistics() models.BlockingStats {
	stats := models.BlockingStats{
		AttackTypes:  make(map[string]int64),
		ThreatLevels: make(map[string]int64),
	}

	model := func() *gorm.DB { return b.db.Model(&models.BlockRecord{}) }

	if err := model().Count(&stats.TotalBlocked).Error; err != nil {
		system.Error("Failed to compute blocking statistics: %v", err)
		return stats
	}
	count := func(dst *int64, query *gorm.DB) {
		if err := query.Count(dst).Error; err != nil {
			system.Error("Failed to compute blocking statistics: %v", err)
		}
	}
	count(&stats.CurrentlyBlocked, model().Where("is_active = ?", true))
	count(&stats.AutoBlocked, model().Where("auto_blocked = ?", true))
	count(&stats.ManualBlocked, model().Where("auto_blocked = ?", false))
	count(&stats.Unblocked, model().Where("is_active = ?", false))
	count(&stats.RecentBlocks24h, model().Where("blocked_at >= ?", b.now().Add(-24*time.Hour)))

	var typeRows []struct {
		AttackType string
		Count      int64
	}
	if err := model().
		Select("attack_type, COUNT(*) as count").
		Where("is_active = ?", true).
		Group("attack_type").
		Scan(&typeRows).Error; err != nil {
		system.Error("Failed to aggregate attack types: %v", err)
	}
	for _, row := range typeRows {
		stats.AttackTypes[row.AttackType] = row.Count
	}

	var levelRows []struct {
		LevelRange string
		Count      int64
	}
	if err := model().
		Select(`CASE
			WHEN threat_level >= 0.8 THEN 'Critical (0.8+)'
			WHEN threat_level >= 0.6 THEN 'High (0.6-0.8)'
			WHEN threat_level >= 0.4 THEN 'Medium (0.4-0.6)'
			ELSE 'Low (0.0-0.4)'
		END as level_range, COUNT(*) as count`).
		Where("is_active = ?", true).
		Group("level_range").
		Scan(&levelRows).Error; err != nil {
		system.Error("Failed to aggregate threat levels: %v", err)
	}
	for _, row := range levelRows {
		stats.ThreatLevels[row.LevelRange] = row.Count
	}

	total := stats.TotalBlocked
	if total < 1 {
		total = 1
	}
	stats.BlockingRate = float64(stats.AutoBlocked) / float64(total) * 100

	return stats
}

// CleanupOldBlocks purges inactive records unblocked before the retention
// window and returns the count removed.
func (b *IPBlocker) CleanupOldBlocks(days int) int {
	cutoff := b.now().AddDate(0, 0, -days)

	res := b.db.
		Where("is_active = ? AND unblocked_at IS NOT NULL AND unblocked_at < ?", false, cutoff).
		Delete(&models.BlockRecord{})
	if res.Error != nil {
		system.Error("Failed to clean up old blocks: %v", res.Error)
		return 0
	}

	if res.RowsAffected > 0 {
		system.Info("Cleaned up %d old block records", res.RowsAffected)
	}
	return int(res.RowsAffected)
}

// expireDue deactivates blocks whose TTL elapsed. Each expiry is applied
// against the specific record identified by (ip, blocked_at): a block that
// was unblocked and re-created since the TTL was scheduled is left alone.
func (b *IPBlocker) expireDue(now time.Time) int {
	var due []models.BlockRecord
	err := b.db.
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Find(&due).Error
	if err != nil {
		system.Error("Failed to query expired blocks: %v", err)
		return 0
	}

	expired := 0
	for _, rec := range due {
		b.mu.Lock()
		at, ok := b.active[rec.IP]
		if !ok || at.UnixMilli() != rec.BlockedAt.UnixMilli() {
			// Superseded by a newer transition since this row was read
			b.mu.Unlock()
			continue
		}

		err := b.db.Model(&models.BlockRecord{}).
			Where("ip = ? AND blocked_at = ? AND is_active = ?", rec.IP, rec.BlockedAt, true).
			Updates(map[string]interface{}{
				"is_active":    false,
				"unblocked_at": now,
				"expires_at":   nil,
			}).Error
		if err != nil {
			b.mu.Unlock()
			system.Error("Failed to expire block for %s: %v", rec.IP, err)
			continue
		}

		delete(b.active, rec.IP)
		enforcer := b.enforcer
		b.mu.Unlock()

		expired++
		system.Info("Block expired for IP %s", rec.IP)
		go func(ip string) {
			if err := enforcer.Unblock(ip); err != nil {
				system.Warn("Firewall rule removal failed for %s: %v", ip, err)
			}
		}(rec.IP)
	}
	return expired
}

// StartSweeper runs the periodic TTL expiry check.
func (b *IPBlocker) StartSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.expireDue(b.now())
			}
		}
	}()
}

// Stop terminates the sweeper.
func (b *IPBlocker) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
}
