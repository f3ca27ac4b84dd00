package app

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestRun_ServeCommand_FailsWithoutDatabase はserveコマンドがDB接続を試み、失敗を返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	for _, args := range [][]string{{"serve"}, {}} {
		var buf bytes.Buffer
		err := Run(&buf, args)
		if err == nil {
			t.Fatalf("Run(%v) should fail when the database is unreachable", args)
		}
		if !strings.Contains(err.Error(), "database") {
			t.Errorf("Run(%v) error = %v, want database error", args, err)
		}
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
	if err := Run(&buf, []string{"migrate"}); err == nil {
		t.Fatal("Run(migrate) with missing env should return error")
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("unknown subcommand should return error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	_, port, err := net.SplitHostPort(healthy.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to parse listener address: %v", err)
	}

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck", "--port", port}); err != nil {
		t.Errorf("healthcheck against healthy server returned error: %v", err)
	}

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	_, port, _ = net.SplitHostPort(unhealthy.Listener.Addr().String())
	if err := Run(&buf, []string{"healthcheck", "--port", port}); err == nil {
		t.Error("healthcheck against unhealthy server should return error")
	}
}
