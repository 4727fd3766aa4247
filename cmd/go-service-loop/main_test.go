package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-service-loop/internal/config"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	for _, arg := range []string{"-version", "--version", "version"} {
		code, out, _ := runCLI(t, arg)
		if code != exitOK {
			t.Errorf("%s: exit = %d, want 0", arg, code)
		}
		if !strings.HasPrefix(out, "go-service-loop ") {
			t.Errorf("%s: output = %q", arg, out)
		}
	}
}

func TestRun_Help(t *testing.T) {
	code, _, errOut := runCLI(t, "-h")
	if code != exitOK {
		t.Errorf("exit = %d, want 0", code)
	}
	if !strings.Contains(errOut, "Retry Policy:") {
		t.Errorf("usage should list flag categories:\n%s", errOut)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"-no-such-flag", "--", "true"}, "Error parsing flags"},
		{"no command", []string{"-interval", "1s"}, "Configuration error"},
		{"bad output", []string{"-output", "printer", "--", "true"}, "Configuration error"},
		{"missing config file", []string{"-config", "/nonexistent/loop.yaml", "--", "true"}, "Error parsing flags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			if code != exitBadConfig {
				t.Errorf("exit = %d, want %d", code, exitBadConfig)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Errorf("stderr = %q, want to contain %q", errOut, tt.want)
			}
		})
	}
}

func TestRun_PrintCmd(t *testing.T) {
	code, out, _ := runCLI(t, "-print-cmd", "-v", "--", "sh", "-c", "echo hi there")
	if code != exitOK {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(out, "sh -c 'echo hi there'") {
		t.Errorf("output should contain the quoted command:\n%s", out)
	}
	if !strings.Contains(out, "interval: 10s") {
		t.Errorf("-v should print the effective configuration:\n%s", out)
	}
}

type closedPipe struct{}

func (closedPipe) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPrintCommand_WriteError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Command = []string{"true"}

	if code := printCommand(closedPipe{}, cfg); code != exitOK {
		t.Errorf("without -v, exit = %d, want 0", code)
	}

	cfg.Verbose = true
	if code := printCommand(closedPipe{}, cfg); code != exitFailed {
		t.Errorf("configuration write failure: exit = %d, want %d", code, exitFailed)
	}
}

func TestRun_ExitStatus(t *testing.T) {
	for _, tool := range []string{"true", "false"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}

	common := []string{"-once", "-metrics", "", "-skip-preflight", "-output", "discard", "-log-level", "error"}

	code, out, _ := runCLI(t, append(common, "--", "true")...)
	if code != exitOK {
		t.Errorf("true: exit = %d, want 0", code)
	}
	if !strings.Contains(out, "Exit Summary") {
		t.Errorf("exit summary missing:\n%s", out)
	}

	code, _, _ = runCLI(t, append(common, "--", "false")...)
	if code != exitFailed {
		t.Errorf("false: exit = %d, want 1", code)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	path := filepath.Join(t.TempDir(), "loop.yaml")
	yaml := `command: ["sh", "-c", "exit 4"]
interval: 10ms
stop_exit_code: 4
output: discard
metrics_addr: ""
skip_preflight: true
log_level: error
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "-config", path)
	if code != exitOK {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut)
	}
	if !strings.Contains(out, "stop requested") {
		t.Errorf("summary should report the stop exit code:\n%s", out)
	}
}
