// Package web serves the live event dashboard.
package web

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTML))

type dashboardData struct {
	WebSocketPath string
	Version       string
}

// Dashboard returns a handler rendering the dashboard page. The page opens a
// WebSocket on wsPath and lists anonymization and tool call events as they
// arrive; it never receives original values.
func Dashboard(wsPath, version string) (http.Handler, error) {
	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, dashboardData{WebSocketPath: wsPath, Version: version}); err != nil {
		return nil, err
	}
	page := buf.Bytes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write(page)
	}), nil
}
