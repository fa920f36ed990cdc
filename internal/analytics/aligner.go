package analytics

import (
	"fmt"
	"sort"
	"time"

	"portfolio-analytics/internal/models"
	apperrors "portfolio-analytics/pkg/errors"
)

// AlignmentPolicy decides which dates survive when calendars differ
type AlignmentPolicy string

const (
	// AlignIntersection keeps only dates present in every series
	AlignIntersection AlignmentPolicy = "intersection"
	// AlignForwardFill keeps every date after all series have started and
	// carries the last close over gaps
	AlignForwardFill AlignmentPolicy = "forward_fill"
)

type Aligner struct {
	policy   AlignmentPolicy
	minDates int
}

func NewAligner(policy AlignmentPolicy, minDates int) *Aligner {
	if policy == "" {
		policy = AlignIntersection
	}
	if minDates < 2 {
		minDates = 2
	}
	return &Aligner{policy: policy, minDates: minDates}
}

// Policy returns the configured alignment policy
func (a *Aligner) Policy() AlignmentPolicy {
	return a.policy
}

// Align builds a frame with one column per distinct ticker. The input series
// are not modified.
func (a *Aligner) Align(series []*models.PriceSeries) (*models.AlignedFrame, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no price series to align")
	}

	closes := make(map[string]map[time.Time]float64, len(series))
	var order []string
	for _, s := range series {
		if s.Len() == 0 {
			return nil, apperrors.NewDataUnavailable(s.Ticker)
		}
		if _, dup := closes[s.Ticker]; dup {
			continue
		}
		byDate := make(map[time.Time]float64, len(s.Points))
		for _, p := range s.Points {
			byDate[p.Date] = p.Close
		}
		closes[s.Ticker] = byDate
		order = append(order, s.Ticker)
	}

	var dates []time.Time
	switch a.policy {
	case AlignForwardFill:
		dates = unionAfterStart(closes)
	case AlignIntersection:
		dates = intersection(closes)
	default:
		return nil, fmt.Errorf("unknown alignment policy %q", a.policy)
	}

	if len(dates) < a.minDates {
		return nil, apperrors.NewInsufficientHistory(a.minDates, len(dates))
	}

	frame := &models.AlignedFrame{
		Dates:   dates,
		Columns: make(map[string][]float64, len(order)),
	}
	for _, ticker := range order {
		frame.Columns[ticker] = fillColumn(closes[ticker], dates)
	}
	return frame, nil
}

func intersection(closes map[string]map[time.Time]float64) []time.Time {
	counts := make(map[time.Time]int)
	for _, byDate := range closes {
		for d := range byDate {
			counts[d]++
		}
	}

	var dates []time.Time
	for d, n := range counts {
		if n == len(closes) {
			dates = append(dates, d)
		}
	}
	sortDates(dates)
	return dates
}

func unionAfterStart(closes map[string]map[time.Time]float64) []time.Time {
	var start time.Time
	for _, byDate := range closes {
		first := time.Time{}
		for d := range byDate {
			if first.IsZero() || d.Before(first) {
				first = d
			}
		}
		if first.After(start) {
			start = first
		}
	}

	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, byDate := range closes {
		for d := range byDate {
			if d.Before(start) {
				continue
			}
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dates = append(dates, d)
			}
		}
	}
	sortDates(dates)
	return dates
}

// fillColumn reads the close for each date, carrying the previous close
// forward when a date is missing. With intersection alignment nothing is
// ever missing.
func fillColumn(byDate map[time.Time]float64, dates []time.Time) []float64 {
	col := make([]float64, len(dates))
	last := 0.0
	for i, d := range dates {
		if c, ok := byDate[d]; ok {
			last = c
		}
		col[i] = last
	}
	return col
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
