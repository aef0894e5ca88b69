// Package script generates worker test scripts from user parameters.
//
// The worker consumes a Python locust script; the generator here fills a
// fixed skeleton with the requested HTTP method, route, payload and
// optional per-request logging. No control flow depends on the output --
// the worker is the only consumer.
package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Params describes the single task the generated script performs.
type Params struct {
	Method      string         // HTTP method, defaults to GET
	Route       string         // target route, defaults to "/"
	WaitTime    float64        // base wait between requests in seconds
	JSONPayload map[string]any // optional body for POST/PUT/PATCH
	BearerToken string         // optional Authorization header
	LogFile     string         // optional per-request log file path
}

var fileTemplate = template.Must(template.New("script").Parse(`from locust import HttpUser, task, between
import json
import datetime

class GeneratedUser(HttpUser):
    wait_time = between({{.WaitMin}}, {{.WaitMax}})

    def on_start(self):
        {{.OnStart}}

    @task
    def generated_task(self):
        try:
            {{.Request}}{{.Log}}
            if response.status_code >= 400:
                response.failure(f"HTTP {response.status_code}: {response.text[:100]}")
        except Exception as e:
            print(f"Request failed: {str(e)}")
`))

// Generate renders a complete worker script for the given parameters.
func Generate(p Params) (string, error) {
	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = "GET"
	}
	route := p.Route
	if route == "" {
		route = "/"
	}
	wait := p.WaitTime
	if wait <= 0 {
		wait = 1.0
	}

	request, err := requestCode(method, route, p.JSONPayload)
	if err != nil {
		return "", err
	}

	onStart := "pass"
	if p.BearerToken != "" {
		onStart = fmt.Sprintf("self.client.headers[\"Authorization\"] = \"Bearer %s\"", p.BearerToken)
	}

	data := struct {
		WaitMin, WaitMax float64
		OnStart          string
		Request          string
		Log              string
	}{
		WaitMin: wait,
		WaitMax: wait + 1,
		OnStart: onStart,
		Request: request,
		Log:     logCode(p.LogFile),
	}

	var buf strings.Builder
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// requestCode builds the request statement for the generated task.
// Unsupported methods fall back to GET.
func requestCode(method, route string, payload map[string]any) (string, error) {
	switch method {
	case "GET", "DELETE":
		return fmt.Sprintf("response = self.client.%s(%q)", strings.ToLower(method), route), nil
	case "POST", "PUT", "PATCH":
		if payload == nil {
			return fmt.Sprintf("response = self.client.%s(%q)", strings.ToLower(method), route), nil
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode json payload: %w", err)
		}
		return fmt.Sprintf("json_data = json.loads(%q)\n            response = self.client.%s(%q, json=json_data)",
			string(body), strings.ToLower(method), route), nil
	default:
		return fmt.Sprintf("response = self.client.get(%q)", route), nil
	}
}

// logCode appends a per-request log line to the session's log file, if any.
func logCode(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf(`
            with open(r"%s", "a", encoding="utf-8") as log_file:
                timestamp = datetime.datetime.now().strftime("%%Y-%%m-%%d %%H:%%M:%%S.%%f")[:-3]
                log_file.write(f"{timestamp} - {response.status_code} - {response.url} - {response.elapsed.total_seconds():.3f}s\\n")
                log_file.flush()`, path)
}
