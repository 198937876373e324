package aggregation

import (
	"context"
	"fmt"
	"sort"

	"github.com/soltixdb/insight/internal/models"
)

// ConditionalAggregation aggregates Field only over records matching Condition
type ConditionalAggregation struct {
	Field       string    `json:"field"`
	Condition   Condition `json:"condition"`
	Function    Function  `json:"aggregationType"`
	ResultField string    `json:"resultField,omitempty"`
}

// OutputField returns ResultField or "<field>_<function>_if"
func (c ConditionalAggregation) OutputField() string {
	if c.ResultField != "" {
		return c.ResultField
	}
	return ResultField(c.Field, c.Function) + "_if"
}

// AdvancedRule aggregates several data types in one request
type AdvancedRule struct {
	DataTypes               []string                 `json:"dataTypes"`
	MultiGroupBy            []string                 `json:"multiGroupBy,omitempty"`
	HierarchicalLevels      []string                 `json:"hierarchicalLevels,omitempty"`
	ConditionalAggregations []ConditionalAggregation `json:"conditionalAggregations,omitempty"`
	AggregateBy             map[string][]Function    `json:"aggregateBy,omitempty"`
	TimeWindow              *TimeWindow              `json:"timeWindow,omitempty"`
	Filter                  models.Filter            `json:"filters"`
	Limit                   int                      `json:"limit,omitempty"`
	CacheKey                string                   `json:"cacheKey,omitempty"`
}

// Validate checks the rule without touching the source
func (r AdvancedRule) Validate() error {
	if len(r.DataTypes) == 0 {
		return &RuleError{Field: "dataTypes", Reason: "at least one data type is required"}
	}
	for i, dt := range r.DataTypes {
		if dt == "" {
			return &RuleError{Field: fmt.Sprintf("dataTypes[%d]", i), Reason: "must not be empty"}
		}
	}
	if err := validateGroupBy("multiGroupBy", r.MultiGroupBy); err != nil {
		return err
	}
	if err := validateGroupBy("hierarchicalLevels", r.HierarchicalLevels); err != nil {
		return err
	}
	if err := validateAggregateBy(r.AggregateBy); err != nil {
		return err
	}
	for i, ca := range r.ConditionalAggregations {
		if ca.Field == "" {
			return &RuleError{Field: fmt.Sprintf("conditionalAggregations[%d].field", i), Reason: "must not be empty"}
		}
		if !ca.Function.Valid() {
			return &RuleError{Field: fmt.Sprintf("conditionalAggregations[%d].aggregationType", i), Reason: fmt.Sprintf("unknown aggregate function %q", ca.Function)}
		}
		if err := ca.Condition.Validate(); err != nil {
			return err
		}
	}
	if r.TimeWindow != nil {
		if err := r.TimeWindow.Validate(); err != nil {
			return err
		}
	}
	if r.Limit < 0 {
		return &RuleError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// groupFields returns the grouping used for the flat group table
func (r AdvancedRule) groupFields() []string {
	if len(r.MultiGroupBy) > 0 {
		return r.MultiGroupBy
	}
	return r.HierarchicalLevels
}

// GroupDetail is one group of one data type
type GroupDetail struct {
	Key         map[string]string  `json:"key"`
	Count       int                `json:"count"`
	Values      map[string]float64 `json:"values,omitempty"`
	Conditional map[string]float64 `json:"conditional,omitempty"`
}

// HierarchyNode is one level of a nested grouping
type HierarchyNode struct {
	Level    string           `json:"level"`
	Key      string           `json:"key"`
	Count    int              `json:"count"`
	Children []*HierarchyNode `json:"children,omitempty"`
}

// DataTypeDetail holds the groups of one data type
type DataTypeDetail struct {
	RecordCount int                     `json:"recordCount"`
	Groups      map[string]*GroupDetail `json:"groups"`
	Hierarchy   []*HierarchyNode        `json:"hierarchy,omitempty"`
}

// AdvancedSummary totals an advanced result
type AdvancedSummary struct {
	TotalRecords int      `json:"totalRecords"`
	TotalGroups  int      `json:"totalGroups"`
	DataTypes    []string `json:"dataTypes"`
}

// AdvancedResult is the output of AggregateAdvanced
type AdvancedResult struct {
	Summary    AdvancedSummary            `json:"summary"`
	Details    map[string]*DataTypeDetail `json:"details"`
	TimeWindow *TimeWindow                `json:"timeWindow,omitempty"`
}

// AggregateAdvanced aggregates every data type of the rule. When CacheKey is
// set a cached result is returned without touching the source; the boolean
// reports a cache hit.
func (e *Engine) AggregateAdvanced(ctx context.Context, rule AdvancedRule) (*AdvancedResult, bool, error) {
	if err := rule.Validate(); err != nil {
		return nil, false, err
	}

	if rule.CacheKey != "" && e.cache != nil {
		if cached, ok := e.cache.Get(rule.CacheKey); ok {
			e.logger.Debug("Advanced aggregation cache hit", "cache_key", rule.CacheKey)
			return cached, true, nil
		}
	}

	now := e.config.Now()
	filter := resolveFilter(rule.Filter, "", rule.TimeWindow, now)

	result := &AdvancedResult{
		Details: make(map[string]*DataTypeDetail, len(rule.DataTypes)),
		Summary: AdvancedSummary{DataTypes: append([]string(nil), rule.DataTypes...)},
	}
	if rule.TimeWindow != nil {
		w := *rule.TimeWindow
		if w.BaseTime.IsZero() {
			w.BaseTime = now
		}
		if w.Type == "" {
			w.Type = WindowSliding
		}
		result.TimeWindow = &w
	}

	for _, dataType := range rule.DataTypes {
		records, err := e.fetch(ctx, dataType, filter)
		if err != nil {
			return nil, false, err
		}
		result.Details[dataType] = e.buildDetail(records, rule)
		result.Summary.TotalRecords += len(records)
	}

	if rule.Limit > 0 {
		LimitGroups(result.Details, rule.Limit)
	}
	result.Summary.TotalGroups = CountTotalGroups(result.Details)

	if rule.CacheKey != "" && e.cache != nil {
		e.cache.Set(rule.CacheKey, result)
	}
	return result, false, nil
}

func (e *Engine) buildDetail(records []models.Record, rule AdvancedRule) *DataTypeDetail {
	detail := &DataTypeDetail{
		RecordCount: len(records),
		Groups:      make(map[string]*GroupDetail),
	}
	if len(records) == 0 {
		return detail
	}

	for _, p := range e.partition(records, rule.groupFields()) {
		g := &GroupDetail{
			Key:    p.key,
			Count:  len(p.records),
			Values: aggregateFields(p.records, rule.AggregateBy),
		}
		if len(rule.ConditionalAggregations) > 0 {
			g.Conditional = make(map[string]float64, len(rule.ConditionalAggregations))
			for _, ca := range rule.ConditionalAggregations {
				fs := NewFieldStats()
				for _, r := range p.records {
					if ca.Condition.Match(r) {
						fs.Add(r[ca.Field])
					}
				}
				g.Conditional[ca.OutputField()] = fs.Value(ca.Function)
			}
		}
		detail.Groups[p.id] = g
	}

	if len(rule.HierarchicalLevels) > 0 {
		detail.Hierarchy = e.buildHierarchy(records, rule.HierarchicalLevels)
	}
	return detail
}

// buildHierarchy nests groups level by level, ordered by key
func (e *Engine) buildHierarchy(records []models.Record, levels []string) []*HierarchyNode {
	if len(levels) == 0 || len(records) == 0 {
		return nil
	}

	level := levels[0]
	parts := e.partition(records, levels[:1])
	nodes := make([]*HierarchyNode, 0, len(parts))
	for _, p := range parts {
		nodes = append(nodes, &HierarchyNode{
			Level:    level,
			Key:      p.key[level],
			Count:    len(p.records),
			Children: e.buildHierarchy(p.records, levels[1:]),
		})
	}
	return nodes
}

// CountTotalGroups sums the groups of every data type
func CountTotalGroups(details map[string]*DataTypeDetail) int {
	total := 0
	for _, d := range details {
		if d != nil {
			total += len(d.Groups)
		}
	}
	return total
}

// LimitGroups keeps at most n groups per data type, preferring the largest
// groups (ties broken by key)
func LimitGroups(details map[string]*DataTypeDetail, n int) {
	for _, d := range details {
		if d == nil || len(d.Groups) <= n {
			continue
		}
		ids := make([]string, 0, len(d.Groups))
		for id := range d.Groups {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			gi, gj := d.Groups[ids[i]], d.Groups[ids[j]]
			if gi.Count != gj.Count {
				return gi.Count > gj.Count
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids[n:] {
			delete(d.Groups, id)
		}
	}
}
