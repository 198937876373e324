package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/analytics/anomaly"
	"github.com/soltixdb/insight/internal/analytics/comparison"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/services"
)

// Trend analyzes one metric over a week or a month
// GET /v1/trends/:period/:metric?referenceDate=xxx
func (h *Handler) Trend(c *fiber.Ctx) error {
	ref, err := queryTime(c, "referenceDate")
	if err != nil {
		return h.badRequest(c, "referenceDate must be in RFC3339 format", err)
	}
	var at time.Time
	if ref != nil {
		at = *ref
	}
	return h.respond(c, h.service.AnalyzeTrend(c.UserContext(), c.Params("period"), c.Params("metric"), at))
}

// DetectAnomalies runs the anomaly rules over a window (the last 7 days by default)
// GET /v1/anomalies?start=xxx&end=xxx
func (h *Handler) DetectAnomalies(c *fiber.Ctx) error {
	start, err := queryTime(c, "start")
	if err != nil {
		return h.badRequest(c, "start must be in RFC3339 format", err)
	}
	end, err := queryTime(c, "end")
	if err != nil {
		return h.badRequest(c, "end must be in RFC3339 format", err)
	}

	var window *anomaly.Window
	if start != nil || end != nil {
		window = &anomaly.Window{}
		if start != nil {
			window.Start = *start
		}
		if end != nil {
			window.End = *end
		}
	}
	return h.respond(c, h.service.DetectAnomalies(c.UserContext(), window))
}

// AlertHistory returns the retained alerts
// GET /v1/anomalies/history
func (h *Handler) AlertHistory(c *fiber.Ctx) error {
	return h.respond(c, h.service.AlertHistory(c.UserContext()))
}

// UpdateThresholds applies a partial threshold update
// PATCH /v1/anomalies/thresholds
func (h *Handler) UpdateThresholds(c *fiber.Ctx) error {
	var update anomaly.ThresholdUpdate
	if err := c.BodyParser(&update); err != nil {
		return h.badRequest(c, "Failed to parse threshold update", err)
	}
	return h.respond(c, h.service.UpdateThresholds(c.UserContext(), update))
}

// compareOptions reads comparison options from query parameters:
// periods, period, metrics, playerId, now and includeDifficultyAdjustment
func compareOptions(c *fiber.Ctx) (comparison.Options, error) {
	var opts comparison.Options

	for _, p := range splitAndTrim(c.Query("periods"), ",") {
		period, err := comparison.ParsePeriod(p)
		if err != nil {
			return opts, err
		}
		opts.Periods = append(opts.Periods, period)
	}
	if raw := c.Query("period"); raw != "" {
		period, err := comparison.ParsePeriod(raw)
		if err != nil {
			return opts, err
		}
		opts.Period = period
	}
	for _, m := range splitAndTrim(c.Query("metrics"), ",") {
		metric, err := trend.ParseMetric(m)
		if err != nil {
			return opts, err
		}
		opts.Metrics = append(opts.Metrics, metric)
	}
	opts.PlayerID = c.Query("playerId")

	now, err := queryTime(c, "now")
	if err != nil {
		return opts, err
	}
	if now != nil {
		opts.Now = *now
	}
	if raw := c.Query("includeDifficultyAdjustment"); raw != "" {
		if opts.IncludeDifficultyAdjustment, err = strconv.ParseBool(raw); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// ComparePast compares the current window with the previous one
// GET /v1/compare/past?periods=week,month&metrics=score,accuracy&playerId=xxx
func (h *Handler) ComparePast(c *fiber.Ctx) error {
	opts, err := compareOptions(c)
	if err != nil {
		return h.badRequest(c, "Invalid comparison parameters", err)
	}
	return h.respond(c, h.service.CompareWithPastData(c.UserContext(), opts))
}

// CompareBenchmark compares the player with the anonymized cohort
// GET /v1/compare/benchmark?period=week&playerId=xxx
func (h *Handler) CompareBenchmark(c *fiber.Ctx) error {
	opts, err := compareOptions(c)
	if err != nil {
		return h.badRequest(c, "Invalid comparison parameters", err)
	}
	return h.respond(c, h.service.CompareWithBenchmark(c.UserContext(), opts))
}

// CompareStages compares stage performance
// GET /v1/compare/stages?period=month&includeDifficultyAdjustment=true
func (h *Handler) CompareStages(c *fiber.Ctx) error {
	opts, err := compareOptions(c)
	if err != nil {
		return h.badRequest(c, "Invalid comparison parameters", err)
	}
	return h.respond(c, h.service.CompareByStage(c.UserContext(), opts))
}

// Improvement generates improvement suggestions
// POST /v1/improvement
func (h *Handler) Improvement(c *fiber.Ctx) error {
	var req services.ImprovementRequest
	if err := parseBody(c, &req); err != nil {
		return h.badRequest(c, "Failed to parse improvement request", err)
	}
	return h.respond(c, h.service.GenerateImprovementSuggestions(c.UserContext(), req))
}

// ImprovementPlan generates a personalized plan for one player
// POST /v1/improvement/plan
func (h *Handler) ImprovementPlan(c *fiber.Ctx) error {
	var req services.ImprovementRequest
	if err := parseBody(c, &req); err != nil {
		return h.badRequest(c, "Failed to parse improvement request", err)
	}
	return h.respond(c, h.service.GenerateImprovementPlan(c.UserContext(), req))
}
