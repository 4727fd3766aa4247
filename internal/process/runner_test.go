package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

// captureStd swaps os.Stdout and os.Stderr for pipes while fn runs and returns
// what was written to each.
func captureStd(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()

	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outW, errW
	defer func() {
		os.Stdout, os.Stderr = origOut, origErr
	}()

	var wg sync.WaitGroup
	var outBuf, errBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&outBuf, outR)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&errBuf, errR)
	}()

	fn()

	outW.Close()
	errW.Close()
	wg.Wait()
	outR.Close()
	errR.Close()
	return outBuf.String(), errBuf.String()
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// =============================================================================
// Output Routing
// =============================================================================

func TestRun_DiscardWritesNothing(t *testing.T) {
	requireTool(t, "sh")

	var res *Result
	var runErr error
	stdout, stderr := captureStd(t, func() {
		res, runErr = Run(context.Background(),
			[]string{"sh", "-c", "echo hello world; echo oops >&2"},
			StreamOutput(false))
	})

	if runErr != nil {
		t.Fatalf("Run() error = %v", runErr)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if stdout != "" || stderr != "" {
		t.Errorf("captured stdout=%q stderr=%q, want both empty", stdout, stderr)
	}
	if res.Stdout != nil || res.Stderr != nil {
		t.Errorf("Result buffers should be nil for discarded streams")
	}
}

func TestRun_InheritStdout(t *testing.T) {
	requireTool(t, "echo")

	var runErr error
	stdout, stderr := captureStd(t, func() {
		_, runErr = Run(context.Background(), []string{"echo", "hello world"}, StreamOutput(true))
	})

	if runErr != nil {
		t.Fatalf("Run() error = %v", runErr)
	}
	if stdout != "hello world\n" {
		t.Errorf("stdout = %q, want %q", stdout, "hello world\n")
	}
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
}

func TestRun_InheritStderr(t *testing.T) {
	requireTool(t, "sh")

	var runErr error
	stdout, stderr := captureStd(t, func() {
		_, runErr = Run(context.Background(),
			[]string{"sh", "-c", ">&2 echo hello world"}, StreamOutput(true))
	})

	if runErr != nil {
		t.Fatalf("Run() error = %v", runErr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if stderr != "hello world\n" {
		t.Errorf("stderr = %q, want %q", stderr, "hello world\n")
	}
}

func TestRun_StdoutToFileSink(t *testing.T) {
	requireTool(t, "echo")

	path := filepath.Join(t.TempDir(), "out.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	res, err := Run(context.Background(), []string{"echo", "hello world"}, Redirect(f, nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := readFile(t, path); got != "hello world\n" {
		t.Errorf("file content = %q, want %q", got, "hello world\n")
	}
}

func TestRun_StderrToFileSink(t *testing.T) {
	requireTool(t, "sh")

	path := filepath.Join(t.TempDir(), "err.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	_, err = Run(context.Background(),
		[]string{"sh", "-c", "echo visible; >&2 echo hello world"}, Redirect(nil, f))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, path); got != "hello world\n" {
		t.Errorf("file content = %q, want %q", got, "hello world\n")
	}
}

func TestRun_SinkNotClosed(t *testing.T) {
	requireTool(t, "echo")

	path := filepath.Join(t.TempDir(), "out.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	if _, err := Run(context.Background(), []string{"echo", "first"}, Redirect(f, nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := f.WriteString("second\n"); err != nil {
		t.Fatalf("sink was closed by Run: %v", err)
	}
	if got := readFile(t, path); got != "first\nsecond\n" {
		t.Errorf("file content = %q", got)
	}
}

func TestRun_WriterSink(t *testing.T) {
	requireTool(t, "sh")

	var out, errOut bytes.Buffer
	_, err := Run(context.Background(),
		[]string{"sh", "-c", "echo to-out; echo to-err >&2"}, Redirect(&out, &errOut))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.String() != "to-out\n" {
		t.Errorf("stdout sink = %q", out.String())
	}
	if errOut.String() != "to-err\n" {
		t.Errorf("stderr sink = %q", errOut.String())
	}
}

func TestRun_CaptureKeepsOrder(t *testing.T) {
	requireTool(t, "seq")

	res, err := Run(context.Background(), []string{"seq", "1", "2000"}, Captured())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var want strings.Builder
	for i := 1; i <= 2000; i++ {
		want.WriteString(strconv.Itoa(i))
		want.WriteByte('\n')
	}
	if string(res.Stdout) != want.String() {
		t.Errorf("captured stdout differs from expected sequence (got %d bytes, want %d)",
			len(res.Stdout), want.Len())
	}
	if len(res.Stderr) != 0 {
		t.Errorf("Stderr = %q, want empty", res.Stderr)
	}
}

// Both streams filling their pipes at once must not deadlock.
func TestRun_LargeOutputOnBothStreams(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "head")

	const size = 1 << 20
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	script := "head -c " + strconv.Itoa(size) + " /dev/zero & head -c " +
		strconv.Itoa(size) + " /dev/zero >&2; wait"
	res, err := Run(ctx, []string{"sh", "-c", script}, Captured())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Stdout) != size {
		t.Errorf("len(Stdout) = %d, want %d", len(res.Stdout), size)
	}
	if len(res.Stderr) != size {
		t.Errorf("len(Stderr) = %d, want %d", len(res.Stderr), size)
	}
}

func TestRun_DirAndEnv(t *testing.T) {
	requireTool(t, "sh")

	dir := t.TempDir()
	res, err := Command{
		Argv:   []string{"sh", "-c", "pwd; echo $LOOP_TEST_VALUE"},
		Dir:    dir,
		Env:    []string{"LOOP_TEST_VALUE=42", "PATH=" + os.Getenv("PATH")},
		Output: Output{Stdout: Capture()},
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %q", lines)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	if gotDir != wantDir {
		t.Errorf("pwd = %q, want %q", gotDir, wantDir)
	}
	if lines[1] != "42" {
		t.Errorf("env value = %q, want 42", lines[1])
	}
}

// =============================================================================
// Exit Codes
// =============================================================================

func TestRun_ExitCodes(t *testing.T) {
	requireTool(t, "sh")

	for _, code := range []int{0, 1, 2, 3, 42, 255} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			res, err := Run(context.Background(),
				[]string{"sh", "-c", "exit " + strconv.Itoa(code)}, StreamOutput(false))
			if err != nil {
				t.Fatalf("non-zero exit must not be an error, got %v", err)
			}
			if res.ExitCode != code {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, code)
			}
			if res.Success() != (code == 0) {
				t.Errorf("Success() = %v for code %d", res.Success(), code)
			}
		})
	}
}

func TestRun_SignalExitCode(t *testing.T) {
	requireTool(t, "sh")

	res, err := Run(context.Background(), []string{"sh", "-c", "kill -TERM $$"}, StreamOutput(false))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 143 {
		t.Errorf("ExitCode = %d, want 143 (128+SIGTERM)", res.ExitCode)
	}
}

type brokenSink struct{}

var errSinkBroken = errors.New("sink broken")

func (brokenSink) Write([]byte) (int, error) { return 0, errSinkBroken }

func TestRun_ExitCodeSurvivesBrokenSink(t *testing.T) {
	requireTool(t, "sh")

	res, err := Run(context.Background(),
		[]string{"sh", "-c", "echo hi; exit 0"},
		Output{Stdout: To(brokenSink{}), Stderr: Discard()})
	if !errors.Is(err, errSinkBroken) {
		t.Fatalf("Run() error = %v, want the sink's error", err)
	}
	if res == nil {
		t.Fatal("Result must be returned alongside a delivery error")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want the child's own status 0", res.ExitCode)
	}
}

func TestRun_ExitCodeSurvivesWaitDelay(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sleep")

	// The background sleep inherits the pipe and outlives the shell.
	start := time.Now()
	res, err := Command{
		Argv:      []string{"sh", "-c", "sleep 3 & exit 0"},
		Output:    Captured(),
		KillGrace: 200 * time.Millisecond,
	}.Run(context.Background())
	if !errors.Is(err, exec.ErrWaitDelay) {
		t.Fatalf("Run() error = %v, want exec.ErrWaitDelay", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v, want it bounded by KillGrace", elapsed)
	}
}

func TestResult_Err(t *testing.T) {
	ok := &Result{Argv: []string{"true"}, ExitCode: 0}
	if err := ok.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	failed := &Result{Argv: []string{"false", "-x"}, ExitCode: 3}
	err := failed.Err()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Err() = %T, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if err.Error() != "exit status 3: false -x" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestResult_Duration(t *testing.T) {
	requireTool(t, "sleep")

	res, err := Run(context.Background(), []string{"sleep", "0.1"}, StreamOutput(false))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Duration() < 80*time.Millisecond {
		t.Errorf("Duration() = %v, want >= ~100ms", res.Duration())
	}
	if res.PID <= 0 {
		t.Errorf("PID = %d", res.PID)
	}
}

// =============================================================================
// Spawn Failures
// =============================================================================

func TestRun_SpawnFailure(t *testing.T) {
	const program = "/nonexistent/definitely-not-a-program"

	res, err := Run(context.Background(), []string{program, "arg"}, StreamOutput(false))
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error = %T %v, want *SpawnError", err, err)
	}
	if spawnErr.Program != program {
		t.Errorf("Program = %q, want %q", spawnErr.Program, program)
	}
	if !strings.Contains(err.Error(), program) {
		t.Errorf("error %q does not name the program", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got %v", err)
	}
}

func TestRun_NotOnPath(t *testing.T) {
	_, err := Run(context.Background(), []string{"definitely-not-a-program-xyz"}, StreamOutput(false))
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error = %v, want exec.ErrNotFound", err)
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	for _, argv := range [][]string{nil, {}} {
		_, err := Run(context.Background(), argv, StreamOutput(false))
		if !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("Run(%v) error = %v, want ErrEmptyCommand", argv, err)
		}
		var spawnErr *SpawnError
		if !errors.As(err, &spawnErr) {
			t.Errorf("Run(%v) error = %T, want *SpawnError", argv, err)
		}
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []string{"sleep", "10"}, StreamOutput(false))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRun_CancelStopsChild(t *testing.T) {
	requireTool(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := Run(ctx, []string{"sleep", "30"}, StreamOutput(false))
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if res == nil {
		t.Fatal("Result should be returned after the child started")
	}
	if res.ExitCode != 143 {
		t.Errorf("ExitCode = %d, want 143 (SIGTERM)", res.ExitCode)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run took %v after cancellation", elapsed)
	}
}

func TestRun_CancelEscalatesToKill(t *testing.T) {
	requireTool(t, "sh")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := Command{
		Argv:      []string{"sh", "-c", "trap '' TERM; sleep 30"},
		Output:    StreamOutput(false),
		KillGrace: 200 * time.Millisecond,
	}.Run(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if res.ExitCode != 137 {
		t.Errorf("ExitCode = %d, want 137 (SIGKILL)", res.ExitCode)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run took %v, kill grace not honoured", elapsed)
	}
}

// =============================================================================
// Stream
// =============================================================================

func TestStream_String(t *testing.T) {
	var nilFile *os.File
	tests := []struct {
		stream Stream
		want   string
	}{
		{Stream{}, "discard"},
		{Discard(), "discard"},
		{Inherit(), "inherit"},
		{Capture(), "capture"},
		{To(&bytes.Buffer{}), "sink"},
		{To(nil), "discard"},
		{To(nilFile), "discard"},
	}

	for _, tt := range tests {
		if got := tt.stream.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStreamOutput(t *testing.T) {
	on := StreamOutput(true)
	if on.Stdout.String() != "inherit" || on.Stderr.String() != "inherit" {
		t.Errorf("StreamOutput(true) = %v/%v", on.Stdout, on.Stderr)
	}
	off := StreamOutput(false)
	if off.Stdout.String() != "discard" || off.Stderr.String() != "discard" {
		t.Errorf("StreamOutput(false) = %v/%v", off.Stdout, off.Stderr)
	}
}
