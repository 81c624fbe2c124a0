package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/stepper-keys/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"us": func(d time.Duration) int64 {
		return d.Microseconds()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Stepper Keys</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.stepping { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.pressed { color: green; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Stepper Keys</h1>

<h2>Motor</h2>
<table>
{{with stateOrUnknown .Machine.Motor}}<tr><th>State</th><td id="motor" class="{{if eq . "STEPPING"}}stepping{{else if eq . "IDLE"}}idle{{else}}unknown{{end}}">{{.}}</td></tr>{{end}}
<tr><th>Remaining</th><td>{{printf "%+d" .Machine.Remaining}}</td></tr>
<tr><th>Phase</th><td>{{.Machine.Index}}</td></tr>
<tr><th>Steps</th><td>{{.Machine.Steps}}</td></tr>
</table>

<h2>Keys</h2>
<table>
{{range $i, $p := .Machine.Keys}}<tr><th>K{{$i}}</th><td class="{{if $p}}pressed{{end}}">{{if $p}}pressed{{else}}released{{end}}</td></tr>
{{end}}{{if .Machine.Latched}}<tr><th>Latch</th><td class="pressed">on</td></tr>{{end}}
</table>
{{if .Machine.Ranging}}
<h2>Ranging</h2>
<table>
{{if .Machine.EchoValid}}<tr><th>Echo</th><td>{{us .Machine.Echo}}us</td></tr>
<tr><th>Distance</th><td>{{printf "%.1f" .Machine.DistanceCm}} cm</td></tr>{{else}}<tr><th>Echo</th><td>none</td></tr>{{end}}
</table>
{{end}}{{if .Machine.Servo}}
<h2>Servo</h2>
<table>
<tr><th>Pulse</th><td>{{us .Machine.ServoPulse}}us</td></tr>
</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.Serial}}<tr><th>Serial</th><td>{{.Config.Serial}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Key press</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Key release</th><td>{{.Counts.Releases}}</td></tr>
<tr><th>Long press</th><td>{{.Counts.LongPresses}}</td></tr>
<tr><th>Motor start</th><td>{{.Counts.Starts}}</td></tr>
<tr><th>Motor idle</th><td>{{.Counts.Idles}}</td></tr>
<tr><th>Dispatch fallbacks</th><td>{{.Machine.Dispatch.Fallbacks}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopUs}}us</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Step delay</th><td>{{.Config.StepDelayUs}}us ({{.Config.Mode}}, {{.Config.StepsPerRev}}/rev)</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
