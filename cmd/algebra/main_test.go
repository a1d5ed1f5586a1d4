package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseSetFlags(t *testing.T) {
	got, err := parseSetFlags([]string{"x=3", " y = -1.5 "})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(got) != 2 || got['x'] != 3 || got['y'] != -1.5 {
		t.Errorf("unexpected bindings: %v", got)
	}

	for _, bad := range []string{"x", "x=abc", "xy=1"} {
		if _, err := parseSetFlags([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestOperationCommands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"eval", "3 + 5 * 4"}, "23"},
		{[]string{"eval", "x", "^", "2", "--set", "x=4"}, "16"},
		{[]string{"tokenize", "2x"}, "2 Var(x)"},
		{[]string{"parse", "(a+b)*c"}, "(a + b) * c"},
		{[]string{"simplify", "x * 1 + 0"}, "x"},
		{[]string{"solve", "3 * x = y", "--for", "x"}, "x = y / 3"},
		{[]string{"solve", "2 * x + 3 = 7", "--for", "x", "--isolate"}, "x = 2"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("command failed: %v\n%s", err, out)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestOperationErrorShowsPosition(t *testing.T) {
	out, err := execute(t, "eval", "1 + @")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, "    ^") || !strings.Contains(out, "UnexpectedSymbol") {
		t.Errorf("expected caret and kind in output:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.yaml")
	src := "name: demo\nsteps:\n  - a: {evaluate: '2 ^ 10', expect: '1024'}\n  - b: {solve: 'x - 1 = 2', expect: 'x = 3'}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", path, "--format", "pretty")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "worksheet demo") || !strings.Contains(out, "2 passed") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "run", path, "--format", "json")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"ok": true`) {
		t.Errorf("unexpected JSON output:\n%s", out)
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lines.txt")
	if err := os.WriteFile(path, []byte("let y = 9\neval: y * 2\nsolve for x: 3 * x = 6\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "batch", path)
	if err != nil {
		t.Fatalf("batch failed: %v\n%s", err, out)
	}
	want := "1: 9\n2: 18\n3: x = 2\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestWatchInterrupt(t *testing.T) {
	// Closing done releases the watcher without cancelling.
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	cancelled := false
	go func() {
		watchInterrupt(sigCh, done, func() { cancelled = true })
		close(exited)
	}()
	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("watcher did not return after done was closed")
	}
	if cancelled {
		t.Error("cancel should not run without a signal")
	}

	// A signal cancels.
	sigCh = make(chan os.Signal, 1)
	calls := make(chan struct{}, 1)
	sigCh <- syscall.SIGINT
	watchInterrupt(sigCh, make(chan struct{}), func() { calls <- struct{}{} })
	select {
	case <-calls:
	default:
		t.Error("expected cancel on signal")
	}
}
