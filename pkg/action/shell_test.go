package action

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "build.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestShellRunnerSuccess(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo \"$PALLET_PREFIX $GREETING\"\npwd\necho oops >&2\n")

	var stdout, stderr bytes.Buffer
	runner := NewShellRunner(&stdout, &stderr)

	outcome, err := runner.Run(context.Background(), Descriptor{Project: "zlib", Script: script}, dir,
		[]string{"PALLET_PREFIX=/opt", "GREETING=hello"})
	if err != nil {
		t.Fatalf("failed to run script: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got exit code %d", outcome.ExitCode)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %q", stdout.String())
	}
	if lines[0] != "/opt hello" {
		t.Errorf("expected environment to reach the script, got %q", lines[0])
	}

	// Compare resolved paths, TempDir may sit behind a symlink
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[1])
	if gotDir != wantDir {
		t.Errorf("expected working directory %s, got %s", wantDir, gotDir)
	}
	if strings.TrimSpace(stderr.String()) != "oops" {
		t.Errorf("expected stderr to be captured, got %q", stderr.String())
	}
}

func TestShellRunnerExitCode(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "exit 3\n")

	outcome, err := (&ShellRunner{}).Run(context.Background(), Descriptor{Script: script}, dir, nil)
	if err != nil {
		t.Fatalf("expected a non-zero exit not to be an error, got %v", err)
	}
	if outcome.Success() || outcome.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", outcome.ExitCode)
	}
}

func TestShellRunnerEnvironmentOverridesInherited(t *testing.T) {
	t.Setenv("PALLET_TEST_VALUE", "inherited")

	dir := t.TempDir()
	script := writeScript(t, dir, "echo \"$PALLET_TEST_VALUE\"\n")

	var stdout bytes.Buffer
	runner := NewShellRunner(&stdout, nil)

	if _, err := runner.Run(context.Background(), Descriptor{Script: script}, dir, nil); err != nil {
		t.Fatalf("failed to run script: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "inherited" {
		t.Errorf("expected inherited value, got %q", got)
	}

	stdout.Reset()
	if _, err := runner.Run(context.Background(), Descriptor{Script: script}, dir,
		[]string{"PALLET_TEST_VALUE=composed"}); err != nil {
		t.Fatalf("failed to run script: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "composed" {
		t.Errorf("expected composed value to win, got %q", got)
	}
}

func TestShellRunnerStartFailure(t *testing.T) {
	dir := t.TempDir()

	_, err := (&ShellRunner{}).Run(context.Background(),
		Descriptor{Script: "build.sh", Shell: filepath.Join(dir, "no-such-shell")}, dir, nil)
	if err == nil {
		t.Fatal("expected an error when the shell cannot be started")
	}

	if _, err := (&ShellRunner{}).Run(context.Background(), Descriptor{}, dir, nil); err == nil {
		t.Fatal("expected an error for an empty script")
	}
}
