package handlers

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// GetBlockedIPs returns all actively blocked addresses, newest first.
// GET /blocked-ips
func (h *Handler) GetBlockedIPs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"blocked_ips": h.Blocker.GetBlockedIPs(true),
	})
}

// GetBlockingStats returns the aggregated blocking statistics.
// GET /blocked-ips/stats
func (h *Handler) GetBlockingStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"statistics": h.Blocker.Statistics(),
	})
}

// BlockIP manually blocks an address.
// POST /block-ip
func (h *Handler) BlockIP(c *fiber.Ctx) error {
	var input struct {
		IP          string  `json:"ip"`
		Reason      string  `json:"reason"`
		ThreatLevel float64 `json:"threat_level"`
		AttackType  string  `json:"attack_type"`
	}
	if err := c.BodyParser(&input); err != nil || input.IP == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "ip is required",
		})
	}

	if input.Reason == "" {
		input.Reason = "Manually blocked by administrator"
	}
	if input.AttackType == "" {
		input.AttackType = "Unknown"
	}

	if !h.Blocker.BlockIP(input.IP, input.Reason, input.ThreatLevel, input.AttackType, false) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": fmt.Sprintf("IP %s is already blocked", input.IP),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": fmt.Sprintf("IP %s has been blocked", input.IP),
	})
}

// UnblockIP lifts an active block.
// POST /unblock-ip
func (h *Handler) UnblockIP(c *fiber.Ctx) error {
	var input struct {
		IP string `json:"ip"`
	}
	if err := c.BodyParser(&input); err != nil || input.IP == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "ip is required",
		})
	}

	if !h.Blocker.UnblockIP(input.IP) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": fmt.Sprintf("IP %s is not currently blocked", input.IP),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": fmt.Sprintf("IP %s has been unblocked", input.IP),
	})
}

// IsBlocked reports the block state of a single address.
// GET /is-blocked/:ip
func (h *Handler) IsBlocked(c *fiber.Ctx) error {
	ip := c.Params("ip")
	return c.JSON(fiber.Map{
		"ip":      ip,
		"blocked": h.Blocker.IsBlocked(ip),
	})
}
