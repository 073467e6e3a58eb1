package health

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"statusClass": statusClass,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>stackup health</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { padding: 4px 12px; border-bottom: 1px solid #ddd; text-align: left; }
.healthy { color: #1a7f37; }
.unhealthy, .unreachable { color: #cf222e; }
.not-installed { color: #6e7781; }
</style>
</head>
<body>
<h1>stackup health</h1>
<p>Generated {{.Generated.Format "2006-01-02 15:04:05 MST"}}: {{.Up}} of {{len .Results}} healthy.</p>
<table>
<tr><th>Unit</th><th>Status</th><th>Endpoint</th><th>Latency</th><th>Detail</th></tr>
{{range .Results}}<tr>
<td>{{.Unit}}</td>
<td class="{{statusClass .Status}}">{{.Status}}</td>
<td>{{if .Endpoint}}{{.Endpoint}}{{else}}-{{end}}</td>
<td>{{if .Latency}}{{.Latency.Milliseconds}} ms{{else}}-{{end}}</td>
<td>{{.Detail}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

func statusClass(s Status) string {
	return strings.ReplaceAll(string(s), " ", "-")
}

type reportData struct {
	Generated time.Time
	Up        int
	Results   []*Result
}

// RenderHTML writes a standalone HTML report of results.
func RenderHTML(w io.Writer, results []*Result, generated time.Time) error {
	data := reportData{Generated: generated, Results: results}
	for _, r := range results {
		if r.Up() {
			data.Up++
		}
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render health report: %w", err)
	}
	return nil
}

// WriteHTMLFile renders the HTML report to path.
func WriteHTMLFile(path string, results []*Result, generated time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := RenderHTML(f, results, generated); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Registry builds a Prometheus registry exposing stackup_unit_up and
// stackup_unit_check_latency_seconds for each result.
func Registry(results []*Result) *prometheus.Registry {
	up := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stackup_unit_up",
		Help: "Whether the unit passed its last health check (1) or not (0).",
	}, []string{"unit"})
	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stackup_unit_check_latency_seconds",
		Help: "Duration of the unit's last endpoint check.",
	}, []string{"unit"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(up, latency)

	for _, r := range results {
		v := 0.0
		if r.Up() {
			v = 1
		}
		up.WithLabelValues(r.Unit).Set(v)
		latency.WithLabelValues(r.Unit).Set(r.Latency.Seconds())
	}
	return reg
}

// WriteTextfile writes results in the node_exporter textfile format.
func WriteTextfile(path string, results []*Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry(results)); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
