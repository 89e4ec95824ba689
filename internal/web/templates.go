package web

import (
	"errors"
	"html/template"
	"time"
)

var (
	errBadState = errors.New("state must be online or offline")
	errBadSince = errors.New("since must be a positive duration such as 1h")
)

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
}).Parse(dashboardHTML))

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="30">
    <title>FleetPulse</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        :root {
            --bg-primary: #0a0f0a;
            --bg-card: rgba(0, 40, 0, 0.4);
            --border-color: #1a4a1a;
            --text-primary: #00ff41;
            --text-dim: #336633;
            --danger: #ff3333;
        }
        body {
            font-family: 'JetBrains Mono', 'Fira Code', monospace;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 24px;
        }
        h1 { font-size: 1.4rem; margin-bottom: 16px; }
        h2 { font-size: 1.1rem; margin: 24px 0 8px; }
        .stats { display: flex; gap: 16px; }
        .card {
            background: var(--bg-card);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 12px 18px;
        }
        .card .value { font-size: 1.6rem; }
        .dim { color: var(--text-dim); }
        .offline { color: var(--danger); }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-dim); font-weight: normal; }
    </style>
</head>
<body>
    <h1>FleetPulse {{if .DaemonRunning}}<span class="dim">daemon running</span>{{else}}<span class="offline">daemon stopped</span>{{end}}</h1>

    <div class="stats">
        <div class="card"><div class="dim">Hosts</div><div class="value">{{len .Hosts}}</div></div>
        <div class="card"><div class="dim">Online</div><div class="value">{{.OnlineCount}}</div></div>
        <div class="card"><div class="dim">Offline</div><div class="value offline">{{.OfflineCount}}</div></div>
    </div>

    <h2>Hosts</h2>
    <table>
        <tr><th>IP</th><th>Hostname</th><th>MAC</th><th>Method</th><th>State</th><th>Last seen</th></tr>
        {{range .Hosts}}
        <tr>
            <td>{{.IP}}</td>
            <td>{{.Hostname}}</td>
            <td class="dim">{{.MAC}}</td>
            <td>{{.CheckMethod}}{{range .Ports}} <span class="dim">{{.Port}}/{{.Protocol}}</span>{{end}}</td>
            <td>{{if .Disabled}}<span class="dim">disabled</span>{{else if .Online}}online{{else}}<span class="offline">offline</span>{{end}}</td>
            <td class="dim">{{when .LastSeen}}</td>
        </tr>
        {{else}}
        <tr><td colspan="6" class="dim">No hosts yet. Add networks to start discovery.</td></tr>
        {{end}}
    </table>

    <h2>Recent events</h2>
    <table>
        <tr><th>Time</th><th>Type</th><th>Description</th></tr>
        {{range .Events}}
        <tr>
            <td class="dim">{{when .Timestamp}}</td>
            <td{{if eq .Severity "warning"}} class="offline"{{end}}>{{.Type}}</td>
            <td>{{.Description}}</td>
        </tr>
        {{else}}
        <tr><td colspan="3" class="dim">No events.</td></tr>
        {{end}}
    </table>

    <p class="dim" style="margin-top: 24px">Generated {{when .GeneratedAt}} &middot; <a class="dim" href="/report">weekly report</a> &middot; <a class="dim" href="/metrics">metrics</a></p>
</body>
</html>
`
