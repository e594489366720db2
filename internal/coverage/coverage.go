// Package coverage finds stretches of unexpected silence in a case's event
// timeline and summarizes how much of the case window each source actually
// covers.
package coverage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/normalize"
)

// Gap is one contiguous span of empty buckets between observed events.
type Gap struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
	Severity string `json:"severity"`

	// ExpectedEvents estimates how many events the silence swallowed:
	// the mean count per active bucket times the gap length.
	ExpectedEvents int64 `json:"expected_events"`

	// AffectedSources lists the source systems active shortly before the
	// gap, the ones an analyst would expect to keep reporting through it.
	AffectedSources []string `json:"affected_sources,omitempty"`
}

// Params tunes gap detection.
type Params struct {
	// BucketMinutes is the detection granularity. <= 0 means 60.
	BucketMinutes int
	// MinGapBuckets is the shortest run of empty buckets reported as a
	// gap. <= 0 means 2.
	MinGapBuckets int
	// Source restricts detection to one source system; "" means the whole
	// case.
	Source string
}

// lookback bounds how far before a gap a source must have reported to count
// as affected by it.
const lookback = 4 * time.Hour

// Severity thresholds by gap duration.
const (
	severityHighAt   = 24 * time.Hour
	severityMediumAt = 4 * time.Hour
)

// Analyzer derives coverage reports from a case store.
type Analyzer struct {
	Store *database.CaseStore
}

// FindGaps buckets the case's event times and reports runs of empty buckets
// between the first and last event. A case with no events has no gaps.
func (a *Analyzer) FindGaps(ctx context.Context, caseID string, p Params) ([]Gap, error) {
	if p.BucketMinutes <= 0 {
		p.BucketMinutes = 60
	}
	if p.MinGapBuckets <= 0 {
		p.MinGapBuckets = 2
	}

	times, err := a.Store.EventTimes(ctx, caseID, p.Source)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, nil
	}

	bucketSec := int64(p.BucketMinutes) * 60
	parsed := make([]observation, 0, len(times))
	occupied := make(map[int64]int64, len(times))
	for _, et := range times {
		t, err := time.Parse(time.RFC3339Nano, et.TS)
		if err != nil {
			return nil, fmt.Errorf("bad stored timestamp %q: %w", et.TS, err)
		}
		epoch := t.Unix()
		parsed = append(parsed, observation{epoch: epoch, source: et.Source})
		occupied[epoch/bucketSec]++
	}
	meanPerBucket := float64(len(parsed)) / float64(len(occupied))

	first := parsed[0].epoch / bucketSec
	last := parsed[len(parsed)-1].epoch / bucketSec

	var gaps []Gap
	for b := first + 1; b <= last; b++ {
		if occupied[b] > 0 {
			continue
		}
		start := b
		for b+1 <= last && occupied[b+1] == 0 {
			b++
		}
		if int(b-start+1) < p.MinGapBuckets {
			continue
		}
		gapStart := time.Unix(start*bucketSec, 0).UTC()
		gapEnd := time.Unix((b+1)*bucketSec, 0).UTC()
		dur := gapEnd.Sub(gapStart)
		gaps = append(gaps, Gap{
			Start:           normalize.FormatUTC(gapStart),
			End:             normalize.FormatUTC(gapEnd),
			Duration:        dur.String(),
			Severity:        severity(dur),
			ExpectedEvents:  int64(math.Round(meanPerBucket * float64(b-start+1))),
			AffectedSources: activeBefore(parsed, gapStart),
		})
	}
	return gaps, nil
}

// SourceCoverage adds to the store's per-source rollup the share of hours in
// the source's observed window that actually had events.
type SourceCoverage struct {
	database.SourceCoverage
	CoveragePct float64 `json:"coverage_pct"`
}

// Sources reports each source system's observed window and per-hour
// activity.
func (a *Analyzer) Sources(ctx context.Context, caseID string) ([]SourceCoverage, error) {
	rows, err := a.Store.SourceCoverages(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]SourceCoverage, 0, len(rows))
	for _, r := range rows {
		sc := SourceCoverage{SourceCoverage: r}
		first, err1 := time.Parse(time.RFC3339Nano, r.FirstEvent)
		last, err2 := time.Parse(time.RFC3339Nano, r.LastEvent)
		if err1 == nil && err2 == nil {
			span := last.Truncate(time.Hour).Sub(first.Truncate(time.Hour))/time.Hour + 1
			sc.CoveragePct = math.Round(float64(r.ActiveHours)/float64(span)*1000) / 10
		}
		out = append(out, sc)
	}
	return out, nil
}

func severity(d time.Duration) string {
	switch {
	case d > severityHighAt:
		return "high"
	case d > severityMediumAt:
		return "medium"
	default:
		return "low"
	}
}

// observation is one stored event time with its source system.
type observation struct {
	epoch  int64
	source string
}

// activeBefore lists sources with at least one event inside the lookback
// window ending at the gap start.
func activeBefore(parsed []observation, gapStart time.Time) []string {
	winStart := gapStart.Add(-lookback).Unix()
	winEnd := gapStart.Unix()
	seen := make(map[string]bool)
	for _, o := range parsed {
		if o.epoch >= winStart && o.epoch < winEnd && o.source != "" {
			seen[o.source] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
