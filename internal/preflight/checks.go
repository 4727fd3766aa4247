// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

const (
	// RequiredFileDescriptors covers the child's pipes, the metrics listener,
	// an output file and the runtime's own descriptors.
	RequiredFileDescriptors = 64

	// RequiredProcesses leaves room for a child that forks helpers of its own.
	RequiredProcesses = 16
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll verifies.
type Options struct {
	Command    []string // argv of the supervised command
	Dir        string   // working directory for the command; empty means current
	OutputFile string   // checked only when non-empty
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	result.add(checkFileDescriptors())
	result.add(checkProcessLimit())

	if opts.Dir != "" {
		result.add(checkWorkingDir(opts.Dir))
	}

	program := ""
	if len(opts.Command) > 0 {
		program = opts.Command[0]
	}
	result.add(checkCommand(program, opts.Dir))

	if opts.OutputFile != "" {
		result.add(checkOutputFile(opts.OutputFile))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	if limit.Cur > uint64(1<<31-1) {
		actual = 1<<31 - 1
	}

	return Check{
		Name:     "file_descriptors",
		Required: RequiredFileDescriptors,
		Actual:   actual,
		Passed:   actual >= RequiredFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, RequiredFileDescriptors),
	}
}

// checkProcessLimit verifies the child can be forked.
func checkProcessLimit() Check {
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: RequiredProcesses,
		Actual:   actual,
		Passed:   actual >= RequiredProcesses,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, RequiredProcesses),
	}
}

// parseMaxProcesses reads the soft "Max processes" limit from the contents of
// /proc/self/limits. It returns 0 when the line is missing or unparsable.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkWorkingDir verifies the command's working directory exists.
func checkWorkingDir(dir string) Check {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return Check{Name: "working_dir", Passed: false, Message: err.Error()}
	case !info.IsDir():
		return Check{Name: "working_dir", Passed: false, Message: dir + " is not a directory"}
	}
	return Check{Name: "working_dir", Passed: true, Message: dir}
}

// checkCommand verifies the program can be resolved the way the runner will
// resolve it: through PATH for bare names, relative to dir for paths.
func checkCommand(program, dir string) Check {
	if program == "" {
		return Check{Name: "command", Passed: false, Message: "no command given"}
	}

	lookup := program
	if dir != "" && strings.Contains(program, "/") && !filepath.IsAbs(program) {
		lookup = filepath.Join(dir, program)
	}

	path, err := exec.LookPath(lookup)
	if err != nil {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", program, err),
		}
	}

	return Check{
		Name:    "command",
		Passed:  true,
		Message: fmt.Sprintf("%s found at %s", program, path),
	}
}

// checkOutputFile verifies the directory holding the output file accepts new
// files. The output file itself is left untouched.
func checkOutputFile(path string) Check {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".go-service-loop-preflight-*")
	if err != nil {
		return Check{
			Name:    "output_file",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{
		Name:    "output_file",
		Passed:  true,
		Message: fmt.Sprintf("appending to %s", path),
	}
}

// WriteResults writes the preflight check results to w.
func WriteResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 256 (or edit /etc/security/limits.conf)"
	case "command":
		return "install the program or pass its absolute path"
	case "working_dir":
		return "create the directory or fix -dir"
	case "output_file":
		return "check permissions on the output directory or change -output-file"
	default:
		return "see documentation"
	}
}
