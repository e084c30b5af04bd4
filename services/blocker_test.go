package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"netsentry/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BlockRecord{}, &models.CacheEntry{}, &models.Admin{}))
	return db
}

func TestBlockUnblockRoundTrip(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	require.True(t, b.BlockIP("10.0.0.100", "test block", 0.9, models.AttackHTTPFlood, true))
	assert.True(t, b.IsBlocked("10.0.0.100"))

	require.True(t, b.UnblockIP("10.0.0.100"))
	assert.False(t, b.IsBlocked("10.0.0.100"))

	// record is retained, deactivated
	records := b.GetBlockedIPs(false)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsActive)
	assert.NotNil(t, records[0].UnblockedAt)
}

func TestUnblockNotBlocked(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	assert.False(t, b.UnblockIP("192.0.2.1"))
}

func TestBlockIdempotence(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	require.True(t, b.BlockIP("10.0.0.1", "first", 0.9, models.AttackHTTPFlood, true))
	assert.False(t, b.BlockIP("10.0.0.1", "second", 0.9, models.AttackHTTPFlood, true))

	stats := b.Statistics()
	assert.Equal(t, int64(1), stats.TotalBlocked)
}

func TestBlockConcurrentSameIP(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	const callers = 8
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.BlockIP("203.0.113.9", "concurrent", 0.9, models.AttackHTTPFlood, true)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one caller performs the insert")

	stats := b.Statistics()
	assert.Equal(t, int64(1), stats.TotalBlocked)
}

func TestShouldAutoBlock(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	// high threat level blocks regardless of type
	assert.True(t, b.ShouldAutoBlock("10.0.0.1", 0.8, "Unknown"))
	assert.True(t, b.ShouldAutoBlock("10.0.0.1", 0.95, models.AttackBotAction))

	// critical attack types use the lower threshold
	assert.True(t, b.ShouldAutoBlock("10.0.0.1", 0.65, models.AttackHTTPFlood))
	assert.True(t, b.ShouldAutoBlock("10.0.0.1", 0.6, models.AttackVolumetric))
	assert.False(t, b.ShouldAutoBlock("10.0.0.1", 0.5, models.AttackBotAction))
	assert.False(t, b.ShouldAutoBlock("10.0.0.1", 0.59, models.AttackUDPFlood))
}

func TestShouldAutoBlockRepeatOffender(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	// before any history, medium threat does not block
	assert.False(t, b.ShouldAutoBlock("10.0.0.2", 0.5, models.AttackBotAction))

	require.True(t, b.BlockIP("10.0.0.2", "first offense", 0.9, models.AttackHTTPFlood, true))
	require.True(t, b.UnblockIP("10.0.0.2"))

	assert.True(t, b.ShouldAutoBlock("10.0.0.2", 0.5, models.AttackBotAction))
	assert.False(t, b.ShouldAutoBlock("10.0.0.2", 0.4, models.AttackBotAction))
}

func TestBlockExpiry(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	now := time.Now()
	b.now = func() time.Time { return now }

	require.True(t, b.BlockIP("10.0.0.3", "flood", 0.9, models.AttackHTTPFlood, true))

	// not yet due
	assert.Zero(t, b.expireDue(now.Add(30*time.Minute)))
	assert.True(t, b.IsBlocked("10.0.0.3"))

	assert.Equal(t, 1, b.expireDue(now.Add(time.Hour+time.Second)))
	assert.False(t, b.IsBlocked("10.0.0.3"))

	records := b.GetBlockedIPs(false)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsActive)
	assert.NotNil(t, records[0].UnblockedAt)
}

func TestBlockExpiryDoesNotHitSupersedingBlock(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	now := time.Now()
	b.now = func() time.Time { return now }
	require.True(t, b.BlockIP("10.0.0.4", "first", 0.9, models.AttackHTTPFlood, true))

	// the ip is unblocked and re-blocked before the first TTL elapses
	now = now.Add(30 * time.Minute)
	require.True(t, b.UnblockIP("10.0.0.4"))
	require.True(t, b.BlockIP("10.0.0.4", "second", 0.9, models.AttackHTTPFlood, true))

	// the first block's TTL moment passes; the newer block must survive
	assert.Zero(t, b.expireDue(now.Add(31*time.Minute)))
	assert.True(t, b.IsBlocked("10.0.0.4"))

	// the newer block expires on its own schedule
	assert.Equal(t, 1, b.expireDue(now.Add(time.Hour+time.Second)))
	assert.False(t, b.IsBlocked("10.0.0.4"))
}

func TestManualBlockPersistsAutoFlag(t *testing.T) {
	db := newTestDB(t)
	b := NewIPBlocker(db, time.Hour)

	require.True(t, b.BlockIP("10.0.0.50", "operator action", 0.2, "Unknown", false))

	var rec models.BlockRecord
	require.NoError(t, db.First(&rec, "ip = ?", "10.0.0.50").Error)
	assert.False(t, rec.AutoBlocked)

	stats := b.Statistics()
	assert.Equal(t, int64(1), stats.ManualBlocked)
	assert.Zero(t, stats.AutoBlocked)
	assert.Zero(t, stats.BlockingRate)
}

func TestBlockedIPsNewestFirst(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	now := time.Now()
	for i, ip := range []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"} {
		at := now.Add(time.Duration(i) * time.Minute)
		b.now = func() time.Time { return at }
		require.True(t, b.BlockIP(ip, "test", 0.9, models.AttackHTTPFlood, true))
	}

	records := b.GetBlockedIPs(true)
	require.Len(t, records, 3)
	assert.Equal(t, "10.0.0.7", records[0].IP)
	assert.Equal(t, "10.0.0.5", records[2].IP)
}

func TestBlockingStatistics(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	require.True(t, b.BlockIP("10.0.1.1", "auto", 0.9, models.AttackHTTPFlood, true))
	require.True(t, b.BlockIP("10.0.1.2", "auto", 0.65, models.AttackVolumetric, true))
	require.True(t, b.BlockIP("10.0.1.3", "manual", 0.3, "Unknown", false))
	require.True(t, b.UnblockIP("10.0.1.2"))

	stats := b.Statistics()
	assert.Equal(t, int64(3), stats.TotalBlocked)
	assert.Equal(t, int64(2), stats.CurrentlyBlocked)
	assert.Equal(t, int64(2), stats.AutoBlocked)
	assert.Equal(t, int64(1), stats.ManualBlocked)
	assert.Equal(t, int64(1), stats.Unblocked)
	assert.Equal(t, int64(3), stats.RecentBlocks24h)
	assert.Equal(t, int64(1), stats.AttackTypes[models.AttackHTTPFlood])
	assert.Equal(t, int64(1), stats.ThreatLevels["Critical (0.8+)"])
	assert.Equal(t, int64(1), stats.ThreatLevels["Low (0.0-0.4)"])
	assert.InDelta(t, 2.0/3.0*100, stats.BlockingRate, 1e-9)
}

func TestCleanupOldBlocks(t *testing.T) {
	b := NewIPBlocker(newTestDB(t), time.Hour)

	old := time.Now().AddDate(0, 0, -60)
	b.now = func() time.Time { return old }
	require.True(t, b.BlockIP("10.0.2.1", "old", 0.9, models.AttackHTTPFlood, true))
	require.True(t, b.UnblockIP("10.0.2.1"))

	b.now = time.Now
	require.True(t, b.BlockIP("10.0.2.2", "recent", 0.9, models.AttackHTTPFlood, true))
	require.True(t, b.UnblockIP("10.0.2.2"))

	assert.Equal(t, 1, b.CleanupOldBlocks(30))

	records := b.GetBlockedIPs(false)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.2.2", records[0].IP)
}

func TestActiveBlocksSurviveRestart(t *testing.T) {
	db := newTestDB(t)

	b := NewIPBlocker(db, time.Hour)
	require.True(t, b.BlockIP("10.0.3.1", "persist", 0.9, models.AttackHTTPFlood, true))

	// a new blocker over the same database sees the active block
	b2 := NewIPBlocker(db, time.Hour)
	assert.True(t, b2.IsBlocked("10.0.3.1"))
}
