package wip

import (
	"math"
	"sort"
	"time"

	"github.com/bdi-platform/wip-backend/internal/models"
)

// Every reporting view is recomputed from the live unit set, never
// incrementally maintained. Callers pass tenant-filtered units so all views
// stay tenant-consistent.

type CFDPoint struct {
	Week    string `json:"week"`
	Intake  int    `json:"Intake"`
	WIP     int    `json:"WIP"`
	RMA     int    `json:"RMA"`
	Outflow int    `json:"Outflow"`
}

// BuildCFD groups units by receipt week. Intake counts every unit received
// that week regardless of where it is now; the stage columns count that
// week's receipts by their current stage.
func BuildCFD(units []models.WIPUnit) []CFDPoint {
	byWeek := map[string]*CFDPoint{}
	for _, u := range units {
		week := u.ISOYearWeekReceived
		if week == "" {
			continue
		}
		p, ok := byWeek[week]
		if !ok {
			p = &CFDPoint{Week: week}
			byWeek[week] = p
		}
		p.Intake++
		switch u.Stage {
		case models.StageWIP:
			p.WIP++
		case models.StageRMA:
			p.RMA++
		case models.StageOutflow:
			p.Outflow++
		}
	}

	weeks := make([]string, 0, len(byWeek))
	for w := range byWeek {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	out := make([]CFDPoint, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, *byWeek[w])
	}
	return out
}

// BuildWeeklySummary derives the weekly metric rows. Outbound metrics are
// keyed by the week of their own event date; wipCumulative is the running
// total of wipInHouse across ascending weeks.
func BuildWeeklySummary(units []models.WIPUnit) []models.WeeklySummary {
	rows := map[string]*models.WeeklySummary{}
	get := func(week string) *models.WeeklySummary {
		r, ok := rows[week]
		if !ok {
			r = &models.WeeklySummary{ISOYearWeek: week}
			rows[week] = r
		}
		return r
	}

	for _, u := range units {
		if u.ISOYearWeekReceived != "" {
			r := get(u.ISOYearWeekReceived)
			r.ReceivedIn++
			if u.Stage == models.StageWIP {
				r.WIPInHouse++
			}
		}
		if u.JiraTransferDate != nil {
			get(ISOYearWeek(*u.JiraTransferDate)).JiraShippedOut++
		}
		if u.EMGShipDate != nil {
			get(ISOYearWeek(*u.EMGShipDate)).EMGShippedOut++
		}
	}

	weeks := make([]string, 0, len(rows))
	for w := range rows {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	out := make([]models.WeeklySummary, 0, len(weeks))
	cumulative := 0
	for _, w := range weeks {
		r := *rows[w]
		cumulative += r.WIPInHouse
		r.WIPCumulative = cumulative
		out = append(out, r)
	}
	return out
}

type AgingPoint struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// BuildAgingHistogram counts in-house units per aging bucket. Outflow units
// are excluded: aging is informative only for units still in the warehouse.
func BuildAgingHistogram(units []models.WIPUnit) []AgingPoint {
	counts := map[string]int{}
	for _, u := range units {
		if u.Stage == models.StageOutflow || u.AgingBucket == "" {
			continue
		}
		counts[u.AgingBucket]++
	}
	out := make([]AgingPoint, 0, len(models.AgingBuckets))
	for _, b := range models.AgingBuckets {
		out = append(out, AgingPoint{Bucket: b, Count: counts[b]})
	}
	return out
}

type SKULeader struct {
	SKU   string `json:"sku"`
	Count int    `json:"count"`
}

// TopSKUs returns the n most frequent model numbers, count descending with
// SKU as tie-break for determinism.
func TopSKUs(units []models.WIPUnit, n int) []SKULeader {
	counts := map[string]int{}
	for _, u := range units {
		counts[u.ModelNumber]++
	}
	out := make([]SKULeader, 0, len(counts))
	for sku, count := range counts {
		out = append(out, SKULeader{SKU: sku, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].SKU < out[j].SKU
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func DistinctSKUs(units []models.WIPUnit) []string {
	return distinct(units, func(u models.WIPUnit) string { return u.ModelNumber })
}

func DistinctSources(units []models.WIPUnit) []string {
	return distinct(units, func(u models.WIPUnit) string { return u.Source })
}

func distinct(units []models.WIPUnit, key func(models.WIPUnit) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range units {
		k := key(u)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type DestinationCount struct {
	Destination string  `json:"destination"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

type OutflowSummary struct {
	TotalShipped     int    `json:"totalShipped"`
	ThisWeekShipped  int    `json:"thisWeekShipped"`
	ThisMonthShipped int    `json:"thisMonthShipped"`
	TopDestination   string `json:"topDestination"`
	DestinationCount int    `json:"destinationCount"`
}

type OutflowBreakdown struct {
	Summary                   OutflowSummary            `json:"summary"`
	Destinations              []DestinationCount        `json:"sortedDestinations"`
	SKUBreakdownByDestination map[string]map[string]int `json:"skuBreakdownByDestination"`
	TopSKUs                   []SKULeader               `json:"topSkus"`
	AllDestinations           []string                  `json:"allDestinations"`
	AllSKUs                   []string                  `json:"allSkus"`
}

// BuildOutflowBreakdown aggregates units that have left the warehouse
// (non-empty outflow destination): totals and share per destination, SKU
// composition within each destination, and recent-shipment counters.
func BuildOutflowBreakdown(units []models.WIPUnit, now time.Time) OutflowBreakdown {
	shipped := make([]models.WIPUnit, 0, len(units))
	for _, u := range units {
		if u.Outflow != "" {
			shipped = append(shipped, u)
		}
	}

	totals := map[string]int{}
	skuByDest := map[string]map[string]int{}
	for _, u := range shipped {
		totals[u.Outflow]++
		if skuByDest[u.Outflow] == nil {
			skuByDest[u.Outflow] = map[string]int{}
		}
		skuByDest[u.Outflow][u.ModelNumber]++
	}

	destinations := make([]DestinationCount, 0, len(totals))
	for dest, count := range totals {
		destinations = append(destinations, DestinationCount{
			Destination: dest,
			Count:       count,
			Percentage:  percentage(count, len(shipped)),
		})
	}
	sort.Slice(destinations, func(i, j int) bool {
		if destinations[i].Count == destinations[j].Count {
			return destinations[i].Destination < destinations[j].Destination
		}
		return destinations[i].Count > destinations[j].Count
	})

	weekAgo := now.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	summary := OutflowSummary{
		TotalShipped:     len(shipped),
		DestinationCount: len(totals),
	}
	for _, u := range shipped {
		if u.ReceivedDate == nil {
			continue
		}
		if !u.ReceivedDate.Before(weekAgo) {
			summary.ThisWeekShipped++
		}
		if !u.ReceivedDate.Before(monthStart) {
			summary.ThisMonthShipped++
		}
	}
	if len(destinations) > 0 {
		summary.TopDestination = destinations[0].Destination
	}

	allDestinations := make([]string, 0, len(totals))
	for d := range totals {
		allDestinations = append(allDestinations, d)
	}
	sort.Strings(allDestinations)

	return OutflowBreakdown{
		Summary:                   summary,
		Destinations:              destinations,
		SKUBreakdownByDestination: skuByDest,
		TopSKUs:                   TopSKUs(shipped, 20),
		AllDestinations:           allDestinations,
		AllSKUs:                   DistinctSKUs(shipped),
	}
}

type StatusSummary struct {
	TotalUnits       int `json:"totalUnits"`
	AvgDaysInWIP     int `json:"avgDaysInWip"`
	ThisWeekReceipts int `json:"thisWeekReceipts"`
	StuckUnits       int `json:"stuckUnits"`
}

type StatusBreakdown struct {
	Summary           StatusSummary             `json:"summary"`
	StatusTotals      map[string]int            `json:"statusTotals"`
	StatusPercentages map[string]float64        `json:"statusPercentages"`
	SKUBreakdown      map[string]map[string]int `json:"skuBreakdown"`
	TopSKUs           []SKULeader               `json:"topSkus"`
	AllSKUs           []string                  `json:"allSkus"`
	StatusOrder       []string                  `json:"statusOrder"`
}

// BuildStatusBreakdown groups all units by processing status, treating an
// unset status as UNASSIGNED. Units sitting in FAILED or MISSING past 30
// days of aging are flagged as stuck - an operational exception signal.
func BuildStatusBreakdown(units []models.WIPUnit, now time.Time) StatusBreakdown {
	totals := map[string]int{}
	skuBreakdown := map[string]map[string]int{}
	for _, s := range models.StatusOrder {
		totals[s] = 0
		skuBreakdown[s] = map[string]int{}
	}
	totals[models.StatusUnassigned] = 0
	skuBreakdown[models.StatusUnassigned] = map[string]int{}

	summary := StatusSummary{TotalUnits: len(units)}
	agingSum, agingCount := 0, 0
	weekAgo := now.AddDate(0, 0, -7)

	for _, u := range units {
		status := u.WIPStatus
		if status == "" {
			status = models.StatusUnassigned
		}
		if skuBreakdown[status] == nil {
			skuBreakdown[status] = map[string]int{}
		}
		totals[status]++
		skuBreakdown[status][u.ModelNumber]++

		if u.AgingDays != nil {
			agingSum += *u.AgingDays
			agingCount++
			if *u.AgingDays > 30 && (status == "FAILED" || status == "MISSING") {
				summary.StuckUnits++
			}
		}
		if u.ReceivedDate != nil && !u.ReceivedDate.Before(weekAgo) {
			summary.ThisWeekReceipts++
		}
	}
	if agingCount > 0 {
		summary.AvgDaysInWIP = int(math.Round(float64(agingSum) / float64(agingCount)))
	}

	percentages := map[string]float64{}
	for status, count := range totals {
		percentages[status] = percentage(count, len(units))
	}

	return StatusBreakdown{
		Summary:           summary,
		StatusTotals:      totals,
		StatusPercentages: percentages,
		SKUBreakdown:      skuBreakdown,
		TopSKUs:           TopSKUs(units, 20),
		AllSKUs:           DistinctSKUs(units),
		StatusOrder:       append(append([]string{}, models.StatusOrder...), models.StatusUnassigned),
	}
}

type SKUCount struct {
	SKU   string `json:"sku"`
	Count int    `json:"count"`
}

type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

type RMAUnitSample struct {
	SerialNumber string     `json:"serialNumber"`
	ModelNumber  string     `json:"modelNumber"`
	Source       string     `json:"source,omitempty"`
	ReceivedDate *time.Time `json:"receivedDate,omitempty"`
	Stage        string     `json:"stage"`
}

type RMABreakdown struct {
	TotalRMAUnits int             `json:"totalRmaUnits"`
	BySKU         []SKUCount      `json:"bySku"`
	BySource      []SourceCount   `json:"bySource"`
	ByStage       []StageCount    `json:"byStage"`
	Recent        []RMAUnitSample `json:"recentRmaUnits"`
}

// BuildRMABreakdown reports RMA-flagged units by SKU, source and stage, plus
// a most-recently-received sample. Units are expected sorted received-date
// descending, which is the store's default order.
func BuildRMABreakdown(units []models.WIPUnit) RMABreakdown {
	rma := make([]models.WIPUnit, 0, len(units))
	for _, u := range units {
		if u.IsRMA {
			rma = append(rma, u)
		}
	}

	bySKU := map[string]int{}
	bySource := map[string]int{}
	byStage := map[string]int{}
	for _, u := range rma {
		sku := u.ModelNumber
		if sku == "" {
			sku = "Unknown"
		}
		source := u.Source
		if source == "" {
			source = "Unknown"
		}
		bySKU[sku]++
		bySource[source]++
		byStage[u.Stage]++
	}

	out := RMABreakdown{TotalRMAUnits: len(rma)}
	for sku, count := range bySKU {
		out.BySKU = append(out.BySKU, SKUCount{SKU: sku, Count: count})
	}
	sort.Slice(out.BySKU, func(i, j int) bool {
		if out.BySKU[i].Count == out.BySKU[j].Count {
			return out.BySKU[i].SKU < out.BySKU[j].SKU
		}
		return out.BySKU[i].Count > out.BySKU[j].Count
	})
	for source, count := range bySource {
		out.BySource = append(out.BySource, SourceCount{Source: source, Count: count})
	}
	sort.Slice(out.BySource, func(i, j int) bool {
		if out.BySource[i].Count == out.BySource[j].Count {
			return out.BySource[i].Source < out.BySource[j].Source
		}
		return out.BySource[i].Count > out.BySource[j].Count
	})
	for stage, count := range byStage {
		out.ByStage = append(out.ByStage, StageCount{Stage: stage, Count: count})
	}
	sort.Slice(out.ByStage, func(i, j int) bool {
		return out.ByStage[i].Stage < out.ByStage[j].Stage
	})

	for i, u := range rma {
		if i == 20 {
			break
		}
		out.Recent = append(out.Recent, RMAUnitSample{
			SerialNumber: u.SerialNumber,
			ModelNumber:  u.ModelNumber,
			Source:       u.Source,
			ReceivedDate: u.ReceivedDate,
			Stage:        u.Stage,
		})
	}
	return out
}

type Metrics struct {
	TotalIntake  int `json:"totalIntake"`
	Intake       int `json:"intake"`
	WIP          int `json:"wip"`
	RMA          int `json:"rma"`
	Outflow      int `json:"outflow"`
	AvgAgingDays int `json:"avgAgingDays"`
}

// BuildMetrics summarizes headline counts per stage and the average aging of
// active WIP units.
func BuildMetrics(units []models.WIPUnit) Metrics {
	m := Metrics{TotalIntake: len(units)}
	agingSum, agingCount := 0, 0
	for _, u := range units {
		switch u.Stage {
		case models.StageIntake, models.StageOtherIntake:
			m.Intake++
		case models.StageWIP:
			m.WIP++
			if u.AgingDays != nil {
				agingSum += *u.AgingDays
				agingCount++
			}
		case models.StageRMA:
			m.RMA++
		case models.StageOutflow:
			m.Outflow++
		}
	}
	if agingCount > 0 {
		m.AvgAgingDays = int(math.Round(float64(agingSum) / float64(agingCount)))
	}
	return m
}

type FlowNode struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type FlowLink struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Value  int `json:"value"`
}

type Flow struct {
	Nodes       []FlowNode     `json:"nodes"`
	Links       []FlowLink     `json:"links"`
	StageCounts map[string]int `json:"stageCounts"`
}

// BuildFlow shapes stage counts into a simplified sankey:
// Intake -> WIP/RMA -> Outflow, splitting outflow 70/30 between the WIP and
// RMA paths as the source file does not record which path a shipped unit took.
func BuildFlow(units []models.WIPUnit) Flow {
	counts := map[string]int{
		models.StageIntake:      0,
		models.StageOtherIntake: 0,
		models.StageWIP:         0,
		models.StageRMA:         0,
		models.StageOutflow:     0,
	}
	for _, u := range units {
		if _, ok := counts[u.Stage]; ok {
			counts[u.Stage]++
		}
	}

	links := []FlowLink{
		{Source: 0, Target: 1, Value: counts[models.StageWIP]},
		{Source: 0, Target: 2, Value: counts[models.StageRMA]},
		{Source: 1, Target: 3, Value: counts[models.StageOutflow] * 7 / 10},
		{Source: 2, Target: 3, Value: counts[models.StageOutflow] * 3 / 10},
	}
	kept := links[:0]
	for _, l := range links {
		if l.Value > 0 {
			kept = append(kept, l)
		}
	}

	return Flow{
		Nodes: []FlowNode{
			{ID: 0, Name: "Intake"},
			{ID: 1, Name: "WIP"},
			{ID: 2, Name: "RMA"},
			{ID: 3, Name: "Outflow"},
		},
		Links:       kept,
		StageCounts: counts,
	}
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
