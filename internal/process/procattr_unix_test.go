//go:build unix

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Cancellation must take down grandchildren too, not only the direct child.
func TestRun_CancelKillsProcessGroup(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sleep")

	marker := filepath.Join(t.TempDir(), "survived")
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := Command{
		Argv:      []string{"sh", "-c", "(sleep 1; echo yes > " + marker + ") & wait"},
		Output:    StreamOutput(false),
		KillGrace: 200 * time.Millisecond,
	}.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}

	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("grandchild outlived cancellation")
	}
}
