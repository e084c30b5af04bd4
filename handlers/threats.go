package handlers

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"netsentry/services"
	"netsentry/storage"
)

// GetAttackPatterns returns the detections of the last 24 hours with
// attack-type and hourly-timeline aggregations.
// GET /attack-patterns
func (h *Handler) GetAttackPatterns(c *fiber.Ctx) error {
	cutoff := float64(time.Now().Add(-24*time.Hour).UnixNano()) / float64(time.Second)

	result := h.Store.Search(services.AttackPatternCollection, &storage.Query{
		Range: map[string]storage.RangeBounds{
			"timestamp": {GTE: &cutoff},
		},
	}, 1000, 0)

	attackTypes := make(map[string]int)
	timeline := make(map[int64]int)
	hits := make([]fiber.Map, 0, len(result.Hits))

	for _, doc := range result.Hits {
		source := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			if !strings.HasPrefix(k, "_") {
				source[k] = v
			}
		}
		hits = append(hits, fiber.Map{
			"_id":     doc["_id"],
			"_source": source,
			"_score":  1.0,
		})

		attackType, _ := doc["attack_type"].(string)
		if attackType == "" {
			attackType = "Unknown"
		}
		attackTypes[attackType]++

		if ts, ok := doc["timestamp"].(float64); ok {
			hourKey := int64(ts/3600) * 3600
			timeline[hourKey]++
		}
	}

	typeAggs := make([]fiber.Map, 0, len(attackTypes))
	for key, count := range attackTypes {
		typeAggs = append(typeAggs, fiber.Map{"key": key, "doc_count": count})
	}

	hourKeys := make([]int64, 0, len(timeline))
	for key := range timeline {
		hourKeys = append(hourKeys, key)
	}
	sort.Slice(hourKeys, func(i, j int) bool { return hourKeys[i] < hourKeys[j] })
	timelineAggs := make([]fiber.Map, 0, len(hourKeys))
	for _, key := range hourKeys {
		timelineAggs = append(timelineAggs, fiber.Map{"key": key, "doc_count": timeline[key]})
	}

	return c.JSON(fiber.Map{
		"hits": fiber.Map{
			"total": fiber.Map{"value": result.Total},
			"hits":  hits,
		},
		"aggregations": fiber.Map{
			"attack_types": typeAggs,
			"timeline":     timelineAggs,
		},
	})
}

// GetActiveThreats returns all non-expired alert entries.
// GET /active-threats
func (h *Handler) GetActiveThreats(c *fiber.Ctx) error {
	threats := make([]map[string]interface{}, 0)

	for _, key := range h.Cache.ListKeys() {
		if !strings.HasPrefix(key, "attack:") {
			continue
		}
		var threat map[string]interface{}
		if h.Cache.GetJSON(key, &threat) {
			threats = append(threats, threat)
		}
	}

	return c.JSON(fiber.Map{"threats": threats})
}
