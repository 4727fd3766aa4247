package process

import (
	"bytes"
	"io"
	"os"
)

type streamKind int

const (
	streamDiscard streamKind = iota
	streamInherit
	streamCapture
	streamSink
)

// Stream says where one of the child's standard streams goes.
// The zero value discards.
type Stream struct {
	kind streamKind
	w    io.Writer
}

// Discard drops the stream.
func Discard() Stream { return Stream{kind: streamDiscard} }

// Inherit forwards the stream to the caller's own stdout/stderr as it is
// produced.
func Inherit() Stream { return Stream{kind: streamInherit} }

// Capture keeps the stream in memory; see Result.Stdout and Result.Stderr.
func Capture() Stream { return Stream{kind: streamCapture} }

// To writes the stream to w. The runner never closes w. A nil w discards.
func To(w io.Writer) Stream {
	if w == nil {
		return Discard()
	}
	if f, ok := w.(*os.File); ok && f == nil {
		return Discard()
	}
	return Stream{kind: streamSink, w: w}
}

// String returns a human-readable name for the stream routing.
func (s Stream) String() string {
	switch s.kind {
	case streamInherit:
		return "inherit"
	case streamCapture:
		return "capture"
	case streamSink:
		return "sink"
	default:
		return "discard"
	}
}

// destination resolves the writer to hand to exec.Cmd. std is the caller's
// own stream, looked up at call time so redirected os.Stdout is honoured.
// buf is non-nil when the stream is captured.
func (s Stream) destination(std *os.File) (w io.Writer, buf *bytes.Buffer) {
	switch s.kind {
	case streamInherit:
		return std, nil
	case streamCapture:
		buf = &bytes.Buffer{}
		return buf, buf
	case streamSink:
		return s.w, nil
	default:
		// nil makes exec connect the child to the null device.
		return nil, nil
	}
}

// Output routes the child's stdout and stderr independently.
type Output struct {
	Stdout Stream
	Stderr Stream
}

// StreamOutput returns Inherit for both streams when enabled and Discard for
// both otherwise.
func StreamOutput(enabled bool) Output {
	if enabled {
		return Output{Stdout: Inherit(), Stderr: Inherit()}
	}
	return Output{Stdout: Discard(), Stderr: Discard()}
}

// Redirect sends stdout and stderr to the given sinks. Either may be nil,
// which discards that stream.
func Redirect(stdout, stderr io.Writer) Output {
	return Output{Stdout: To(stdout), Stderr: To(stderr)}
}

// Captured keeps both streams in memory.
func Captured() Output {
	return Output{Stdout: Capture(), Stderr: Capture()}
}
