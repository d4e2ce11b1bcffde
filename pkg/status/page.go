package status

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/sample"
)

var page = template.Must(template.New("status").Funcs(template.FuncMap{
	"fixed": func(prec int, v float64) string { return fmt.Sprintf("%.*f", prec, v) },
}).Parse(`<!DOCTYPE html>
<html><head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="5">
<title>Aspol Tracker</title>
<style>
body{font-family:Arial;max-width:600px;margin:auto;padding:20px;}
table{width:100%;border-collapse:collapse;}
th,td{border:1px solid #ddd;padding:8px;text-align:left;}
input,select{width:100%;padding:5px;margin:5px 0;}
.anomaly{color:#b00;font-weight:bold;}
</style>
</head><body>
<h1>{{.Status.Device}} Status</h1>

<h2>Device Status</h2>
<table>
<tr><th>Time</th><td>{{.Status.Time}}</td></tr>
<tr><th>Temperature</th><td>{{with .Status.Temperature}}{{fixed 2 .}} °C{{else}}Sensor Not Initialized{{end}}</td></tr>
<tr><th>Mode</th><td>{{.Status.Mode}}</td></tr>
{{with .Status.Reading}}{{if .Valid}}
<tr><th>Current</th><td{{if .Anomalous}} class="anomaly"{{end}}>{{fixed 2 .Current}} {{$.Status.Unit}}</td></tr>
<tr><th>Average</th><td>{{fixed 2 .Average}} {{$.Status.Unit}}</td></tr>
<tr><th>Threshold</th><td>{{fixed 2 .Threshold}} {{$.Status.Unit}}</td></tr>
{{else}}
<tr><th>Current</th><td>Sensor Not Initialized</td></tr>
{{end}}{{end}}
<tr><th>GPS Status</th><td>{{with .Status.GPS}}{{if .Valid}}Lat: {{fixed 6 .Lat}}, Lng: {{fixed 6 .Lng}}, Speed: {{fixed 2 .SpeedKmh}} km/h, Satellites: {{.Satellites}}{{else}}No Valid GPS Data{{end}}{{end}}</td></tr>
<tr><th>SD Card</th><td>{{if .Status.Storage}}Available{{else}}Not Available{{end}}</td></tr>
</table>

<h2>Device Configuration</h2>
<form method="POST" action="/config">
<table>
<tr><th>SSID</th><td><input type="text" name="ssid" maxlength="31" value="{{.Config.SSID}}"></td></tr>
<tr><th>Password</th><td><input type="password" name="password" maxlength="31" placeholder="Enter new password"></td></tr>
<tr><th>Device Name</th><td><input type="text" name="deviceName" maxlength="31" value="{{.Config.DeviceName}}"></td></tr>
<tr><th>Sensor Mode</th><td><select name="sensorMode">
{{range .Modes}}<option value="{{.}}"{{if eq . $.Config.Mode}} selected{{end}}>{{.}}</option>
{{end}}</select></td></tr>
<tr><th>Pressure Threshold (%)</th><td><input type="number" step="0.01" name="pressureThreshold" value="{{.Config.PressurePct}}"></td></tr>
<tr><th>Flow Threshold (%)</th><td><input type="number" step="0.01" name="flowThreshold" value="{{.Config.FlowPct}}"></td></tr>
<tr><td colspan="2"><input type="submit" value="Save Configuration"></td></tr>
</table>
</form>

<h2>Diagnostics</h2>
<table>
{{range .Diagnostics}}<tr><td>{{.Millis}}</td><td>{{.Text}}</td></tr>
{{else}}<tr><td>No messages</td></tr>
{{end}}</table>
</body></html>
`))

type pageData struct {
	Status      Status
	Config      devconf.Values
	Modes       []sample.Mode
	Diagnostics []diag.Record
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Status:      s.Snapshot(),
		Config:      publicConfig(s.Config.Get()),
		Modes:       sample.Modes,
		Diagnostics: s.Diag.Snapshot(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		s.Log.WithError(err).Warn("Status page render failed")
	}
}
