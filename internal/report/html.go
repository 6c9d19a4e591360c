package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var htmlReport = template.Must(template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate))

// MarshalHTML renders the summary as a standalone HTML page.
func MarshalHTML(s *Summary) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("summary cannot be nil")
	}
	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"num":          Num,
		"formatNumber": formatNumber,
		"formatTime":   formatTime,
		"runDuration":  runDuration,
		"inc":          func(i int) int { return i + 1 },
		"deref":        func(f *float64) float64 { return *f },
	}
}

// formatNumber formats a large number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}

	result := make([]byte, 0, len(str)+len(str)/3)
	for i := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	return string(result)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// runDuration is the wall time of the run rounded to the second.
func runDuration(s *Summary) string {
	if s.StartTime.IsZero() || s.EndTime.Before(s.StartTime) {
		return "-"
	}
	return s.EndTime.Sub(s.StartTime).Round(time.Second).String()
}
