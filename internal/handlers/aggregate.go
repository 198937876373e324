package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/aggregation"
)

// Aggregate groups and aggregates one data type
// POST /v1/aggregate
func (h *Handler) Aggregate(c *fiber.Ctx) error {
	var rule aggregation.Rule
	if err := c.BodyParser(&rule); err != nil {
		return h.badRequest(c, "Failed to parse aggregation rule", err)
	}
	return h.respond(c, h.service.GetAggregatedData(c.UserContext(), rule))
}

// AggregateAdvanced aggregates several data types at once
// POST /v1/aggregate/advanced
func (h *Handler) AggregateAdvanced(c *fiber.Ctx) error {
	var rule aggregation.AdvancedRule
	if err := c.BodyParser(&rule); err != nil {
		return h.badRequest(c, "Failed to parse advanced aggregation rule", err)
	}
	return h.respond(c, h.service.GetAdvancedAggregatedData(c.UserContext(), rule))
}

// TimeSeries buckets one data type by interval
// POST /v1/timeseries
func (h *Handler) TimeSeries(c *fiber.Ctx) error {
	var rule aggregation.TimeSeriesRule
	if err := c.BodyParser(&rule); err != nil {
		return h.badRequest(c, "Failed to parse time series rule", err)
	}
	return h.respond(c, h.service.GetTimeSeriesAggregation(c.UserContext(), rule))
}

// StatsSummary summarizes every data type
// GET /v1/stats/summary?startDate=xxx&endDate=xxx
func (h *Handler) StatsSummary(c *fiber.Ctx) error {
	filter, err := queryFilter(c)
	if err != nil {
		return h.badRequest(c, "Invalid filter parameters", err)
	}
	return h.respond(c, h.service.GetStatsSummary(c.UserContext(), filter))
}

// Records lists anonymized records of one data type
// GET /v1/records/:dataType?startDate=xxx&endDate=xxx&limit=xxx
func (h *Handler) Records(c *fiber.Ctx) error {
	filter, err := queryFilter(c)
	if err != nil {
		return h.badRequest(c, "Invalid filter parameters", err)
	}
	return h.respond(c, h.service.GetRecords(c.UserContext(), c.Params("dataType"), filter))
}
