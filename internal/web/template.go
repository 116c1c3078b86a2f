package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/power-usage/internal/status"
)

// Sparkline geometry, in SVG user units.
const (
	sparkWidth  = 100.0
	sparkHeight = 20.0
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"percent": func(share float64) string {
		return fmt.Sprintf("%.0f%%", share*100)
	},
	"spark": sparkLines,
	"deref": func(f *float64) float64 {
		if f == nil {
			return 0
		}
		return *f
	},
}).Parse(indexHTML))

// sparkLines turns one device's share history into polyline point lists.
// Null shares break the line.
func sparkLines(history []status.ShareJSON, device string) []string {
	var (
		lines []string
		cur   []string
	)
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = nil
		}
	}
	step := sparkWidth
	if len(history) > 1 {
		step = sparkWidth / float64(len(history)-1)
	}
	for i, h := range history {
		v := h.CPU
		if device == "gpu" {
			v = h.GPU
		}
		if v == nil {
			flush()
			continue
		}
		cur = append(cur, fmt.Sprintf("%.1f,%.1f", float64(i)*step, sparkHeight*(1-*v)))
	}
	flush()
	return lines
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Power Usage</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.base { color: #333; }
.orange { color: orange; font-weight: bold; }
.red { color: red; font-weight: bold; }
.bar { display: inline-block; width: 60px; height: 8px; background: #eee; margin-left: 6px; vertical-align: middle; }
.bar span { display: block; height: 100%; background: #4a90d9; }
.bar.orange span { background: orange; }
.bar.red span { background: red; }
svg.spark { width: 100px; height: 20px; vertical-align: middle; }
svg.spark polyline { fill: none; stroke: #4a90d9; stroke-width: 1; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Power Usage<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

{{if not .Enabled}}
<p>No power metrics available on this host.</p>
{{else}}
<h2>Indicators</h2>
<table>
{{if .CPU.Available}}<tr id="cpu-row"><th>{{.CPU.Label}}</th><td><span id="cpu-text" class="{{.CPU.Color}}">{{.CPU.Text}}</span>{{if .Config.ShowBar}}<span id="cpu-bar" class="bar {{.CPU.Color}}"><span style="width: {{percent .CPU.Share}}"></span></span>{{end}}
<svg id="cpu-spark" class="spark" viewBox="0 0 100 20" preserveAspectRatio="none">{{range spark .History "cpu"}}<polyline points="{{.}}"/>{{end}}</svg></td></tr>{{end}}
{{if .GPU.Available}}<tr id="gpu-row"><th>{{.GPU.Label}}</th><td><span id="gpu-text" class="{{.GPU.Color}}">{{.GPU.Text}}</span>{{if .Config.ShowBar}}<span id="gpu-bar" class="bar {{.GPU.Color}}"><span style="width: {{percent .GPU.Share}}"></span></span>{{end}}
<svg id="gpu-spark" class="spark" viewBox="0 0 100 20" preserveAspectRatio="none">{{range spark .History "gpu"}}<polyline points="{{.}}"/>{{end}}</svg></td></tr>{{end}}
{{if .Emissions.Available}}<tr id="em-row"><th>Emissions</th><td id="em-text">{{.Emissions.Text}}</td></tr>{{end}}
</table>
{{end}}

<h2>Emission Factor</h2>
<table>
<tr><th>Source</th><td>{{.Emissions.Source}}{{if .Emissions.CountryCode}} ({{.Emissions.CountryCode}}){{end}}</td></tr>
<tr><th>Factor</th><td>{{if .Emissions.FactorMgPerWs}}{{printf "%.4f" (deref .Emissions.FactorMgPerWs)}} mg/Ws{{else}}unavailable{{end}}</td></tr>
<tr><th>Total</th><td>{{printf "%.2f" .Emissions.TotalMg}} mg</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime}}</td></tr>
<tr><th>Scope</th><td>{{.Config.Scope}}</td></tr>
<tr><th>Power refresh</th><td>{{.Config.PowerRefreshMs}}ms ({{.Pollers.Power.Phase}})</td></tr>
<tr><th>Emissions refresh</th><td>{{.Config.EmissionsRefreshMs}}ms ({{.Pollers.EmissionFactor.Phase}})</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}{{if .MQTT.Broker}} ({{.MQTT.Broker}}){{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function setDevice(name, d, history) {
    var text = document.getElementById(name + "-text");
    if (!text) return;
    text.textContent = d.text;
    text.className = d.color;
    var bar = document.getElementById(name + "-bar");
    if (bar) {
      bar.className = "bar " + d.color;
      bar.firstChild.style.width = Math.round(d.share * 100) + "%";
    }
    var svg = document.getElementById(name + "-spark");
    if (!svg) return;
    var step = history.length > 1 ? 100 / (history.length - 1) : 100;
    var lines = [], cur = [];
    history.forEach(function(h, i) {
      var v = h[name];
      if (v === null) { if (cur.length) lines.push(cur.join(" ")); cur = []; return; }
      cur.push((i * step).toFixed(1) + "," + (20 * (1 - v)).toFixed(1));
    });
    if (cur.length) lines.push(cur.join(" "));
    svg.innerHTML = lines.map(function(p) { return '<polyline points="' + p + '"/>'; }).join("");
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss:" : "ws:";
    var ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        setDevice("cpu", s.cpu, s.history);
        setDevice("gpu", s.gpu, s.history);
        var em = document.getElementById("em-text");
        if (em) em.textContent = s.emissions.available ? s.emissions.text : "";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.StatusInner
		Uptime time.Duration
	}{
		StatusInner: status.View(snap),
		Uptime:      snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
