package tracker

import (
	"sort"

	"github.com/wesleyorama2/infraload/internal/report"
)

// Summarize reduces closed outage durations (seconds, in occurrence
// order) to report figures. Outages shorter than minSec are excluded
// from the significant figures but still counted in the raw ones.
func Summarize(periods []float64, minSec float64, topN int) report.OutageSummary {
	if len(periods) == 0 {
		return report.OutageSummary{Kind: report.OutageNone, MinSec: minSec}
	}

	out := report.OutageSummary{
		Kind:     report.OutageMicroOnly,
		MinSec:   minSec,
		RawCount: len(periods),
		RawTotal: sum(periods),
		RawMax:   maxOf(periods),
	}

	significant := make([]float64, 0, len(periods))
	for _, d := range periods {
		if d >= minSec {
			significant = append(significant, d)
		}
	}
	if len(significant) == 0 {
		return out
	}

	sorted := append([]float64(nil), significant...)
	sort.Float64s(sorted)

	out.Kind = report.OutageSignificant
	out.Count = len(significant)
	out.Total = sum(significant)
	out.Max = sorted[len(sorted)-1]
	out.P50, _ = Percentile(sorted, 0.50)
	out.P95, _ = Percentile(sorted, 0.95)
	out.P99, _ = Percentile(sorted, 0.99)

	longest := append([]float64(nil), significant...)
	sort.SliceStable(longest, func(i, j int) bool { return longest[i] > longest[j] })
	if topN >= 0 && topN < len(longest) {
		longest = longest[:topN]
	}
	out.Longest = longest

	return out
}

func sum(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

func maxOf(vals []float64) float64 {
	m := 0.0
	for i, v := range vals {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}
