package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pallet/pkg/lock"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// newTestRoot lays out a build root where app depends on lib.
func newTestRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pallet.yaml"), `
prefix: /opt/stack
host: test-host
environment:
  - name: CFLAGS
    value: -O2
projects:
  app: src/app
  lib: src/lib
`, 0o644)
	writeFile(t, filepath.Join(root, "src", "lib", "project.yaml"), "name: lib\n", 0o644)
	writeFile(t, filepath.Join(root, "src", "lib", "build.sh"), "echo lib >> \"$PALLET_BUILD_ROOT/built.txt\"\n", 0o755)
	writeFile(t, filepath.Join(root, "src", "app", "project.yaml"), `
name: app
dependencies:
  ordinary: [lib]
  build-only: [cmake]
environment:
  - name: CFLAGS
    value: -O3
`, 0o644)
	writeFile(t, filepath.Join(root, "src", "app", "build.sh"), "echo app >> \"$PALLET_BUILD_ROOT/built.txt\"\n", 0o755)

	return root
}

// run executes the CLI against root and returns its standard output.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand(&app{version: "test"}, "test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--root", root, "--log-level", "error", "--poll-interval", "10ms"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	root := newTestRoot(t)

	if _, err := run(t, root, "build", "app"); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := run(t, root, "build", "app", "lib"); err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "built.txt"))
	if err != nil {
		t.Fatalf("failed to read build output: %v", err)
	}
	if got := string(data); got != "lib\napp\n" {
		t.Errorf("expected lib then app built once each, got %q", got)
	}
}

func TestBuildCommandRequiresProject(t *testing.T) {
	if _, err := run(t, newTestRoot(t), "build"); err == nil {
		t.Error("expected error without project names")
	}
}

func TestStatusCommand(t *testing.T) {
	root := newTestRoot(t)

	out, err := run(t, root, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Nothing recorded yet") {
		t.Errorf("expected empty status, got %q", out)
	}

	if _, err := run(t, root, "build", "app"); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	out, err = run(t, root, "status", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}

	var keys []string
	for _, e := range report.Entries {
		keys = append(keys, e.Key.String())
		if e.RunID == "" {
			t.Errorf("entry %s has no run ID", e.Key)
		}
	}
	sort.Strings(keys)
	want := "build-only/cmake requirement/app requirement/lib"
	if got := strings.Join(keys, " "); got != want {
		t.Errorf("expected entries %q, got %q", want, got)
	}
	if len(report.Locks) != 0 {
		t.Errorf("expected no locks, got %v", report.Locks)
	}
}

func TestStatusCommandLockStates(t *testing.T) {
	root := newTestRoot(t)

	host, err := os.Hostname()
	if err != nil {
		t.Fatalf("failed to read hostname: %v", err)
	}
	acquired := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339)
	writeFile(t, filepath.Join(root, "src", "app", lock.MarkerName),
		`{"token":"t1","pid":4242,"host":"build-02.example","acquired_at":"`+acquired+`"}`, 0o644)
	writeFile(t, filepath.Join(root, "src", "lib", lock.MarkerName),
		`{"token":"t2","pid":0,"host":"`+host+`","acquired_at":"`+acquired+`"}`, 0o644)

	out, err := run(t, root, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{
		"Locked: app (held elsewhere by pid 4242 on build-02.example",
		"Locked: lib (stale by pid 0 on " + host,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestGraphCommand(t *testing.T) {
	root := newTestRoot(t)

	out, err := run(t, root, "graph")
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	for _, want := range []string{"Level 0:\n  lib\n", "Level 1:\n  app <- lib [build-only: cmake]\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, root, "graph", "app", "--dot")
	if err != nil {
		t.Fatalf("graph --dot failed: %v", err)
	}
	if !strings.HasPrefix(out, "digraph Dependencies {") || !strings.Contains(out, `"lib" -> "app";`) {
		t.Errorf("unexpected DOT output:\n%s", out)
	}
}

func TestEnvCommand(t *testing.T) {
	root := newTestRoot(t)

	out, err := run(t, root, "env", "app")
	if err != nil {
		t.Fatalf("env failed: %v", err)
	}

	want := []string{
		"CFLAGS=-O3",
		"PALLET_PREFIX=/opt/stack",
		"PALLET_HOST=test-host",
	}
	for _, line := range want {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("expected %q in output:\n%s", line, out)
		}
	}
	if strings.Contains(out, "CFLAGS=-O2") {
		t.Errorf("project environment should override the global one:\n%s", out)
	}

	if _, err := run(t, root, "env", "missing"); err == nil {
		t.Error("expected error for unmapped project")
	}
}

func TestUnlockCommand(t *testing.T) {
	root := newTestRoot(t)
	projectRoot := filepath.Join(root, "src", "lib")

	out, err := run(t, root, "unlock", "lib")
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if !strings.Contains(out, "lib is not locked") {
		t.Errorf("unexpected output %q", out)
	}

	locker := lock.NewLocker(zerolog.Nop(), 10*time.Millisecond)
	handle, err := locker.Acquire(context.Background(), projectRoot)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	if _, err := run(t, root, "unlock", "lib"); err == nil {
		t.Fatal("expected unlock to refuse a live holder")
	}
	if _, err := lock.Inspect(projectRoot); err != nil {
		t.Fatalf("marker should still be present: %v", err)
	}

	out, err = run(t, root, "unlock", "lib", "--force")
	if err != nil {
		t.Fatalf("forced unlock failed: %v", err)
	}
	if !strings.Contains(out, "Unlocked lib") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := lock.Inspect(projectRoot); !errors.Is(err, lock.ErrNotLocked) {
		t.Errorf("expected marker removed, got %v", err)
	}
	if err := handle.Release(); !errors.Is(err, lock.ErrMarkerLost) {
		t.Errorf("expected ErrMarkerLost from the original holder, got %v", err)
	}
}

func TestInvalidTelemetryFlags(t *testing.T) {
	_, err := run(t, newTestRoot(t), "--trace-exporter", "otlp", "status")
	if err == nil {
		t.Error("expected error for otlp exporter without endpoint")
	}
}
