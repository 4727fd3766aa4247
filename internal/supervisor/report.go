package supervisor

import (
	"fmt"
	"strings"
)

// kinder lets an error choose the name printed in diagnostic reports.
type kinder interface {
	Kind() string
}

// ErrorKind returns the name used for err in diagnostic reports: its Kind()
// if it has one, otherwise its dynamic type such as "net.OpError".
func ErrorKind(err error) string {
	if err == nil {
		return "<nil>"
	}
	if k, ok := err.(kinder); ok {
		return k.Kind()
	}
	return strings.TrimLeft(fmt.Sprintf("%T", err), "*")
}

// FormatReport renders the escalation report for a streak of n failures.
//
//	Failed the last 3 attempts. Please check your environment and configuration.
//	Examples of recent errors:
//
//	net.OpError: dial tcp: connection refused
func FormatReport(n int, records []FailureRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nFailed the last %d attempts. Please check your environment and configuration.\n", n)
	b.WriteString("Examples of recent errors:\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%s: %s\n", ErrorKind(rec.Err), rec.Err.Error())
	}
	return b.String()
}
