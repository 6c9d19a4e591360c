package report

// htmlTemplate is the page rendered by MarshalHTML.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Infra Performance Summary{{if .RunID}} - {{.RunID}}{{end}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
            --accent-success: #22c55e;
            --accent-warning: #f59e0b;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1100px; margin: 0 auto; padding: 2rem; }

        .card {
            background: var(--bg-primary);
            border-radius: 12px;
            padding: 1.5rem 2rem;
            margin-bottom: 1.5rem;
            box-shadow: var(--shadow);
        }

        h1 { font-size: 1.75rem; margin-bottom: 0.5rem; }
        h2 { font-size: 1.15rem; margin-bottom: 0.75rem; }
        .meta { color: var(--text-secondary); font-size: 0.875rem; }

        .status {
            display: inline-block;
            padding: 0.4rem 1rem;
            border-radius: 8px;
            font-weight: 600;
        }
        .status.pass { background: rgba(34, 197, 94, 0.1); color: var(--accent-success); }
        .status.fail { background: rgba(239, 68, 68, 0.1); color: var(--accent-error); }
        .status.warn { background: rgba(245, 158, 11, 0.1); color: var(--accent-warning); }

        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.4rem 0.75rem; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-secondary); font-weight: 600; }
        td.num { text-align: right; font-variant-numeric: tabular-nums; }
    </style>
</head>
<body>
<div class="container">
    <div class="card">
        <h1>Infra Performance Summary</h1>
        <div class="meta">
            {{if .RunID}}Run {{.RunID}} &middot; {{end}}{{formatTime .StartTime}} &middot; {{runDuration .}}
        </div>
        <p style="margin-top: 0.75rem;">
        {{if .StopReason}}<span class="status fail">Stopped early by STEP-SLA</span>
        {{else}}<span class="status pass">Normal stop</span>{{end}}
        </p>
    </div>

    <div class="card">
        <h2>Configuration</h2>
        <table>
            <tr><th>Target URL</th><td>{{.Config.TargetURL}}</td></tr>
            <tr><th>Observe Path</th><td>{{.Config.ObservePath}}</td></tr>
            <tr><th>Fault Injection</th><td>{{if .Config.FaultEnabled}}Enabled{{else}}Disabled{{end}} (Mode: {{.Config.FaultModeLabel}})</td></tr>
            <tr><th>Step SLA Stop</th><td>{{if .Config.StepSLAStop}}Enabled{{else}}Disabled{{end}}</td></tr>
            <tr><th>P95 SLA</th><td>{{num .Config.SLAP95Ms}} ms</td></tr>
        </table>
    </div>

    {{with .StopReason}}
    <div class="card">
        <h2>Stop Reason</h2>
        <table>
            <tr><th>Step</th><td class="num">{{.Step}}</td></tr>
            <tr><th>Users</th><td class="num">~{{.Users}}</td></tr>
            <tr><th>Step P95</th><td class="num">{{printf "%.1f" .P95Ms}} ms</td></tr>
            <tr><th>Step P99</th><td class="num">{{printf "%.1f" .P99Ms}} ms</td></tr>
            <tr><th>Fail %</th><td class="num">{{printf "%.2f" .FailRate}}</td></tr>
            <tr><th>Observed</th><td class="num">{{.ObservedTotal}}</td></tr>
            <tr><th>Elapsed</th><td class="num">{{printf "%.1f" .ElapsedSec}} s</td></tr>
        </table>
    </div>
    {{end}}

    <div class="card">
        <h2>Load Balancing (OBSERVE)</h2>
        {{if .Servers}}
        <table>
            <tr><th>Server</th><th>Hits</th><th>Ratio</th></tr>
            {{range .Servers}}
            <tr><td>{{.ID}}</td><td class="num">{{.Hits}}</td><td class="num">{{printf "%.1f" .Ratio}}%</td></tr>
            {{end}}
        </table>
        {{with .Scaling}}
        <p class="meta" style="margin-top: 0.75rem;">Initial hosts: {{range $i, $h := .Initial}}{{if $i}}, {{end}}{{$h}}{{end}}</p>
        {{if .New}}
        <table style="margin-top: 0.5rem;">
            <tr><th>New host</th><th>Detected at</th><th>Time</th></tr>
            {{range .New}}
            <tr><td>{{.ID}}</td><td class="num">{{printf "%.1f" .OffsetSec}} s</td><td>{{.FirstSeen.Format "15:04:05"}}</td></tr>
            {{end}}
        </table>
        {{else}}<p class="meta">No new hosts detected during the test.</p>{{end}}
        {{end}}
        {{else}}
        <p class="meta">No host data collected via OBSERVE_PATH.</p>
        {{end}}
    </div>

    <div class="card">
        <h2>Reliability</h2>
        {{with .Reliability}}
        <table>
            <tr><th>Total Requests (ALL)</th><td class="num">{{formatNumber .TotalRequests}}</td></tr>
            <tr><th>Failed Requests (ALL)</th><td class="num">{{formatNumber .TotalFailures}}</td></tr>
            <tr><th>OBSERVE Requests</th><td class="num">{{.ObserveRequests}}</td></tr>
            <tr><th>OBSERVE Failures</th><td class="num">{{.ObserveFailures}}</td></tr>
            {{if .ErrorDurationSec}}<tr><th>Error Duration</th><td class="num">{{printf "%.1f" (deref .ErrorDurationSec)}} s</td></tr>{{end}}
            {{if .Latency.Available}}
            <tr><th>P95 Latency{{if .Latency.Fallback}} (ALL fallback){{end}}</th><td class="num">{{printf "%.1f" .Latency.P95Ms}} ms</td></tr>
            <tr><th>P99 Latency{{if .Latency.Fallback}} (ALL fallback){{end}}</th><td class="num">{{printf "%.1f" .Latency.P99Ms}} ms</td></tr>
            <tr><th>SLA Met</th><td class="num">{{if .Latency.SLAMet}}<span class="status pass">YES</span>{{else}}<span class="status fail">NO</span>{{end}}</td></tr>
            {{else}}
            <tr><th>P95 / P99 Latency</th><td class="num">N/A</td></tr>
            {{end}}
            {{if .ObserveRequests}}<tr><th>Success Rate</th><td class="num">{{printf "%.2f" .SuccessRate}}%</td></tr>{{end}}
        </table>
        {{if .HTTPCodes}}
        <h2 style="margin-top: 1rem;">HTTP Error Codes (total {{.HTTPCodeTotal}})</h2>
        <table>
            {{range .HTTPCodes}}<tr><td>{{.Code}}</td><td class="num">{{.Count}}</td></tr>{{end}}
        </table>
        {{end}}
        {{if .TopFailures}}
        <h2 style="margin-top: 1rem;">Top Failure Reasons</h2>
        <table>
            <tr><th>Count</th><th>Method</th><th>Message</th></tr>
            {{range .TopFailures}}<tr><td class="num">{{.Occurrences}}</td><td>{{.Method}}</td><td>{{.Message}}</td></tr>{{end}}
        </table>
        {{end}}
        {{end}}
    </div>

    <div class="card">
        <h2>Service Outages</h2>
        {{with .Outages}}
        {{if eq .Kind.String "none"}}
        <p><span class="status pass">No outage detected</span></p>
        {{else if eq .Kind.String "micro_only"}}
        <p><span class="status warn">Only micro-outages (&lt;{{printf "%.3f" .MinSec}}s)</span></p>
        <table>
            <tr><th>Raw count</th><td class="num">{{.RawCount}}</td></tr>
            <tr><th>Raw total</th><td class="num">{{printf "%.3f" .RawTotal}} s</td></tr>
            <tr><th>Raw max</th><td class="num">{{printf "%.3f" .RawMax}} s</td></tr>
        </table>
        {{else}}
        <table>
            <tr><th>Count (&ge; {{printf "%.3f" .MinSec}}s)</th><td class="num">{{.Count}} (raw {{.RawCount}})</td></tr>
            <tr><th>Total time</th><td class="num">{{printf "%.3f" .Total}} s (raw {{printf "%.3f" .RawTotal}} s)</td></tr>
            <tr><th>Max</th><td class="num">{{printf "%.3f" .Max}} s (raw {{printf "%.3f" .RawMax}} s)</td></tr>
            <tr><th>p50 / p95 / p99</th><td class="num">{{printf "%.3f" .P50}} / {{printf "%.3f" .P95}} / {{printf "%.3f" .P99}} s</td></tr>
        </table>
        <h2 style="margin-top: 1rem;">Longest outages</h2>
        <table>
            {{range $i, $d := .Longest}}<tr><td>#{{inc $i}}</td><td class="num">{{printf "%.3f" $d}} s</td></tr>{{end}}
        </table>
        {{end}}
        {{end}}
    </div>
</div>
</body>
</html>
`
