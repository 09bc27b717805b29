package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sflowg/flowengine/plugin"
)

func TestComponentProcessGET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := New("http")
	if err := c.Init(map[string]any{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := plugin.NewContext(nil)
	ctx.Set("request", map[string]any{
		"url":    server.URL,
		"method": "GET",
	})

	if err := c.Process(ctx); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	response, ok := ctx.Get("response")
	if !ok {
		t.Fatal("expected response to be set")
	}
	resp := response.(map[string]any)
	if resp["status_code"].(int) != 200 {
		t.Errorf("expected status_code 200, got %v", resp["status_code"])
	}
	if resp["is_error"].(bool) {
		t.Error("expected is_error to be false")
	}
}

func TestComponentDefaultsToGET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New("http")
	if err := c.Init(map[string]any{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := plugin.NewContext(nil)
	ctx.Set("request", map[string]any{"url": server.URL})

	if err := c.Process(ctx); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
}

func TestComponentHealthCheckReflectsInit(t *testing.T) {
	c := New("http")
	if c.HealthCheck() {
		t.Error("expected HealthCheck to be false before Init")
	}
	if err := c.Init(map[string]any{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !c.HealthCheck() {
		t.Error("expected HealthCheck to be true after Init")
	}
}
