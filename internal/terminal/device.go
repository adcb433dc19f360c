// Package terminal implements the PTY session layer: one Device per child
// shell, an indexed Output History per Session, a Background Reader that
// drains the Device into the History, and a Manager that owns the
// process-wide Session registry.
package terminal

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const maxReadChunk = 10 * 1024

// env fixed at start for every child shell.
var baseEnv = []string{
	"TERM=xterm-256color",
	"COLORTERM=truecolor",
	"LANG=LC_ALL=en_US.UTF-8",
}

// Device wraps one PTY master/child-shell pair.
type Device struct {
	cmd     *exec.Cmd
	master  *os.File
	pid     int
	running bool
	pending []byte // trailing partial UTF-8 sequence carried between reads
}

func resolveShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// StartDevice forks a child running the login shell attached to a new PTY.
func StartDevice(rows, cols uint16, cwd string) (*Device, error) {
	shell := resolveShell()
	cmd := exec.Command(shell, "-l")
	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			cmd.Dir = cwd
		}
	}
	cmd.Env = append(os.Environ(), baseEnv...)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, err
	}

	d := &Device{cmd: cmd, master: master, pid: cmd.Process.Pid, running: true}
	_ = d.configureLineDiscipline()
	return d, nil
}

// configureLineDiscipline sets the PTY to canonical mode with echo, the way
// an interactive login shell expects its controlling terminal to behave.
func (d *Device) configureLineDiscipline() error {
	fd := int(d.master.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag |= unix.ICRNL | unix.IXON
	t.Oflag |= unix.OPOST | unix.ONLCR
	t.Cflag |= unix.CS8 | unix.CREAD
	t.Lflag |= unix.ISIG | unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHOCTL | unix.ECHOKE | unix.IEXTEN
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// Write performs a single non-retried write to the master fd. Failure on an
// unwritable fd is swallowed.
func (d *Device) Write(p []byte) {
	if d.master == nil {
		return
	}
	_, _ = d.master.Write(p)
}

// Read waits up to timeout for output then returns up to 10KiB, lossily
// decoded as UTF-8. A trailing partial multi-byte sequence is carried over
// to the next call instead of being dropped.
func (d *Device) Read(timeout time.Duration) []byte {
	if d.master == nil {
		return nil
	}
	_ = d.master.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, maxReadChunk)
	n, err := d.master.Read(buf)
	if n == 0 {
		return nil
	}
	_ = err // timeout/EAGAIN and any other read error both just yield whatever was read

	data := buf[:n]
	if len(d.pending) > 0 {
		data = append(append([]byte(nil), d.pending...), data...)
	}
	valid, pending := splitTrailingIncompleteRune(data)
	d.pending = pending
	return valid
}

// splitTrailingIncompleteRune separates a byte-boundary-tolerant valid UTF-8
// prefix from a possibly-incomplete trailing sequence (at most utf8.UTFMax-1
// bytes) so the next read can complete it instead of mangling it.
func splitTrailingIncompleteRune(b []byte) (valid, pending []byte) {
	if utf8.Valid(b) {
		return b, nil
	}
	for cut := len(b); cut > 0 && len(b)-cut < utf8.UTFMax; cut-- {
		if utf8.Valid(b[:cut]) {
			return b[:cut], append([]byte(nil), b[cut:]...)
		}
	}
	return []byte(strings.ToValidUTF8(string(b), "")), nil
}

// SetWinsize issues the OS resize ioctl then signals the child so
// full-screen TUIs redraw.
func (d *Device) SetWinsize(rows, cols uint16) error {
	if d.master == nil {
		return errors.New("device closed")
	}
	if err := pty.Setsize(d.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return err
	}
	_ = syscall.Kill(d.pid, syscall.SIGWINCH)
	return nil
}

// Close closes the master fd and kills the child. Both steps are best-effort.
func (d *Device) Close() {
	if d.master != nil {
		_ = d.master.Close()
	}
	if d.pid > 0 {
		_ = syscall.Kill(d.pid, syscall.SIGKILL)
	}
	d.running = false
}

// IsAlive reports whether the child process still exists.
func (d *Device) IsAlive() bool {
	if !d.running || d.pid <= 0 {
		return false
	}
	return syscall.Kill(d.pid, 0) == nil
}

// Pid returns the child shell's process id.
func (d *Device) Pid() int {
	return d.pid
}
