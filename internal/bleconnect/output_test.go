package bleconnect

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputFormatterField(t *testing.T) {
	var out bytes.Buffer
	f := NewOutputFormatter(&out, &bytes.Buffer{}, false)
	f.Field("Adapter", "hci0 (powered, pairable)")
	got := out.String()
	if !strings.HasPrefix(got, "Adapter:") {
		t.Fatalf("expected line to start with label, got %q", got)
	}
	if !strings.HasSuffix(strings.TrimRight(got, "\n"), "hci0 (powered, pairable)") {
		t.Fatalf("expected value at end of line, got %q", got)
	}
}

func TestOutputFormatterResult(t *testing.T) {
	var out bytes.Buffer
	f := NewOutputFormatter(&out, &bytes.Buffer{}, false)

	f.Result(true, "Bond established - ready to connect")
	if !strings.HasPrefix(out.String(), "Result:") {
		t.Fatalf("expected an aligned Result: line, got %q", out.String())
	}
	if !strings.Contains(out.String(), "✓") {
		t.Fatalf("expected success mark, got %q", out.String())
	}

	out.Reset()
	f.Result(false, "No valid bond present")
	if !strings.Contains(out.String(), "✗") {
		t.Fatalf("expected failure mark, got %q", out.String())
	}
}

func TestOutputFormatterVerboseGating(t *testing.T) {
	var out bytes.Buffer

	quiet := NewOutputFormatter(&out, &bytes.Buffer{}, false)
	quiet.Verbose("should not appear")
	if out.Len() != 0 {
		t.Fatalf("expected no output when verbose=false, got %q", out.String())
	}

	loud := NewOutputFormatter(&out, &bytes.Buffer{}, true)
	loud.Verbose("detail %d", 1)
	if out.Len() == 0 {
		t.Fatal("expected output when verbose=true")
	}
}

func TestOutputFormatterErrorGoesToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := NewOutputFormatter(&stdout, &stderr, false)
	f.Error("adapter not found")
	if stdout.Len() != 0 {
		t.Fatalf("expected nothing on stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "adapter not found") {
		t.Fatalf("expected message on stderr, got %q", stderr.String())
	}
}
