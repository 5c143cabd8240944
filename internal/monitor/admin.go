package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/cellgate/internal/httputil"
)

const defaultChartPoints = 600

// status is the JSON body of /debug/monitor-status.
type status struct {
	Phase    Phase          `json:"phase"`
	Alerts   int            `json:"alerts"`
	Baseline *Baseline      `json:"baseline,omitempty"`
	Listener *ListenerStats `json:"listener,omitempty"`
	Last     *Decision      `json:"last,omitempty"`
}

// AttachAdminRoutes mounts /debug/monitor-status (JSON) and
// /debug/monitor-chart (HTML line chart of recent samples). l may be nil.
func (m *Monitor) AttachAdminRoutes(mux *http.ServeMux, l *Listener) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("monitor-status", "anomaly monitor state", func(w http.ResponseWriter, r *http.Request) {
		st := status{Phase: m.Phase(), Alerts: m.Alerts()}
		if b, ok := m.Baseline(); ok {
			st.Baseline = &b
		}
		if l != nil {
			ls := l.Stats()
			st.Listener = &ls
		}
		if last := m.Recent(1); len(last) == 1 {
			st.Last = &last[0]
		}
		httputil.WriteJSONOK(w, st)
	})

	debug.HandleFunc("monitor-chart", "recent voltage and noise chart", func(w http.ResponseWriter, r *http.Request) {
		points := defaultChartPoints
		if v := r.URL.Query().Get("points"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= recentLimit {
				points = n
			}
		}
		var buf bytes.Buffer
		if err := renderChart(&buf, m.Recent(points)); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
}

func renderChart(buf *bytes.Buffer, decisions []Decision) error {
	xs := make([]string, 0, len(decisions))
	volts := make([]opts.LineData, 0, len(decisions))
	noise := make([]opts.LineData, 0, len(decisions))
	alerts := make([]opts.LineData, 0, len(decisions))
	for _, d := range decisions {
		xs = append(xs, strconv.Itoa(d.Seq))
		volts = append(volts, opts.LineData{Value: d.Features.VoltageMV})
		noise = append(noise, opts.LineData{Value: d.Features.NoiseStd})
		var a interface{} = "-"
		if d.Alert {
			a = d.Features.VoltageMV
		}
		alerts = append(alerts, opts.LineData{Value: a})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Battery monitor", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Battery monitor", Subtitle: fmt.Sprintf("samples=%d", len(decisions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mV"}),
	)
	line.SetXAxis(xs).
		AddSeries("voltage", volts).
		AddSeries("noise std", noise).
		AddSeries("alert", alerts, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	return line.Render(buf)
}
