package terminal

import (
	"os"
	"testing"
)

func TestResolveShellUsesEnv(t *testing.T) {
	old, hadOld := os.LookupEnv("SHELL")
	defer func() {
		if hadOld {
			os.Setenv("SHELL", old)
		} else {
			os.Unsetenv("SHELL")
		}
	}()

	os.Setenv("SHELL", "/usr/bin/zsh")
	if got := resolveShell(); got != "/usr/bin/zsh" {
		t.Fatalf("resolveShell() = %q, want /usr/bin/zsh", got)
	}

	os.Unsetenv("SHELL")
	if got := resolveShell(); got != "/bin/bash" {
		t.Fatalf("resolveShell() with no SHELL = %q, want /bin/bash", got)
	}
}

func TestSplitTrailingIncompleteRunePassesValidInput(t *testing.T) {
	in := []byte("hello, 世界")
	valid, pending := splitTrailingIncompleteRune(in)
	if string(valid) != string(in) {
		t.Fatalf("valid = %q, want %q", valid, in)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %q, want empty", pending)
	}
}

func TestSplitTrailingIncompleteRuneCarriesPartialSequence(t *testing.T) {
	full := []byte("ok 世界") // last rune is 3 bytes
	cut := full[:len(full)-1]         // chop the last byte of the trailing rune

	valid, pending := splitTrailingIncompleteRune(cut)
	if string(valid) != "ok 世" {
		t.Fatalf("valid = %q, want %q", valid, "ok 世")
	}
	if len(pending) != 2 {
		t.Fatalf("pending length = %d, want 2", len(pending))
	}

	// completing the sequence on the next read should decode cleanly
	completed, rest := splitTrailingIncompleteRune(append(pending, full[len(full)-1]))
	if string(completed) != "界" {
		t.Fatalf("completed = %q, want %q", completed, "界")
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %q, want empty", rest)
	}
}

func TestDeviceIsAliveFalseWhenNotStarted(t *testing.T) {
	d := &Device{}
	if d.IsAlive() {
		t.Fatal("IsAlive() on zero-value Device should be false")
	}
}
