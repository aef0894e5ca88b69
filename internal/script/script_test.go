package script

import (
	"strings"
	"testing"
)

func TestGenerateGet(t *testing.T) {
	body, err := Generate(Params{Method: "GET", Route: "/api/items", WaitTime: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, `self.client.get("/api/items")`) {
		t.Errorf("expected GET request code, got:\n%s", body)
	}
	if !strings.Contains(body, "between(2, 3)") {
		t.Errorf("expected wait_time between(2, 3), got:\n%s", body)
	}
}

func TestGenerateDefaults(t *testing.T) {
	body, err := Generate(Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, `self.client.get("/")`) {
		t.Errorf("expected GET / by default, got:\n%s", body)
	}
	if !strings.Contains(body, "between(1, 2)") {
		t.Errorf("expected default wait time of 1s, got:\n%s", body)
	}
}

func TestGeneratePostWithPayload(t *testing.T) {
	body, err := Generate(Params{
		Method:      "post",
		Route:       "/api/users",
		JSONPayload: map[string]any{"name": "test"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, "json_data = json.loads(") {
		t.Errorf("expected payload decode, got:\n%s", body)
	}
	if !strings.Contains(body, `self.client.post("/api/users", json=json_data)`) {
		t.Errorf("expected POST with json body, got:\n%s", body)
	}
}

func TestGenerateUnsupportedMethodFallsBackToGet(t *testing.T) {
	body, err := Generate(Params{Method: "BREW", Route: "/coffee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, `self.client.get("/coffee")`) {
		t.Errorf("expected fallback to GET, got:\n%s", body)
	}
}

func TestGenerateBearerToken(t *testing.T) {
	body, err := Generate(Params{BearerToken: "tok123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, `self.client.headers["Authorization"] = "Bearer tok123"`) {
		t.Errorf("expected auth header setup, got:\n%s", body)
	}
}

func TestGenerateLogFile(t *testing.T) {
	body, err := Generate(Params{LogFile: "/tmp/session.log"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(body, `open(r"/tmp/session.log", "a", encoding="utf-8")`) {
		t.Errorf("expected log file append, got:\n%s", body)
	}
}

func TestGenerateWithoutLogFileHasNoLogging(t *testing.T) {
	body, err := Generate(Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(body, "log_file") {
		t.Errorf("expected no logging code, got:\n%s", body)
	}
}
