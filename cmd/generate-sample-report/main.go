// Command generate-sample-report prints a sample end-of-run report, or
// exports it when given a .json, .yaml or .yml path.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/wesleyorama2/infraload/internal/report"
)

func main() {
	summary := createSampleSummary()

	if len(os.Args) < 2 {
		if err := report.NewTextRenderer(false).Render(os.Stdout, summary); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	outputPath := os.Args[1]
	if err := report.WriteFile(outputPath, summary); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func createSampleSummary() *report.Summary {
	now := time.Now()
	start := now.Add(-12 * time.Minute)
	errDuration := 41.7

	return &report.Summary{
		RunID:     "3f1c8a52-9d0e-4b7a-a6f2-0c5d1e8b4f90",
		StartTime: start,
		EndTime:   now,
		Config: report.ConfigEcho{
			TargetURL:      "http://demo-alb-123456.ap-northeast-2.elb.amazonaws.com",
			ObservePath:    "/",
			FaultEnabled:   true,
			FaultModeLabel: "SINGLE",
			StepSLAStop:    true,
			SLAP95Ms:       500,
		},
		StopReason: &report.SLAStop{
			Step:          3,
			Users:         150,
			P95Ms:         742.5,
			P99Ms:         1210.0,
			FailRate:      1.84,
			ObservedTotal: 21480,
			ElapsedSec:    540.2,
			Timestamp:     start.Add(540 * time.Second),
		},
		Servers: []report.ServerHits{
			{ID: "ip-10-0-1-11", Hits: 26210, Ratio: 45.6},
			{ID: "ip-10-0-2-12", Hits: 24890, Ratio: 43.3},
			{ID: "ip-10-0-3-13", Hits: 6380, Ratio: 11.1},
		},
		TotalHits: 57480,
		Scaling: &report.Scaling{
			Initial: []string{"ip-10-0-1-11", "ip-10-0-2-12"},
			New: []report.HostSighting{
				{ID: "ip-10-0-3-13", FirstSeen: start.Add(402 * time.Second), OffsetSec: 402.3},
			},
		},
		Reliability: report.Reliability{
			TotalRequests:    72110,
			TotalFailures:    1190,
			ObserveRequests:  58410,
			ObserveFailures:  930,
			ErrorDurationSec: &errDuration,
			Latency: report.Latency{
				Available: true,
				P95Ms:     512.0,
				P99Ms:     980.0,
			},
			SuccessRate: 98.41,
			HTTPCodes: []report.CodeCount{
				{Code: "502", Count: 712},
				{Code: "503", Count: 201},
			},
			HTTPCodeTotal: 913,
			TopFailures: []report.Failure{
				{Occurrences: 712, Method: "GET", Message: "HTTPError('502 Server Error: Bad Gateway')"},
				{Occurrences: 201, Method: "GET", Message: "HTTPError('503 Server Error: Service Unavailable')"},
				{Occurrences: 17, Method: "GET", Message: "connection reset by peer"},
			},
		},
		Outages: report.OutageSummary{
			Kind:     report.OutageSignificant,
			MinSec:   0.1,
			RawCount: 9,
			RawTotal: 38.214,
			RawMax:   31.502,
			Count:    3,
			Total:    38.051,
			Max:      31.502,
			P50:      4.933,
			P95:      31.502,
			P99:      31.502,
			Longest:  []float64{31.502, 4.933, 1.616},
		},
	}
}
