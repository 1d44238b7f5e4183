package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
)

// ExecDialer launches the native helper and talks to it over its standard
// streams, the way a browser connects to a native messaging host. Command
// defaults to the peer name; Args default to the peer name as argv[1].
// Write deadlines apply to the helper's stdin where the platform supports
// deadlines on pipes; elsewhere a helper that stops reading blocks Send.
type ExecDialer struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
	Codec   protocol.Codec
	Limits  frame.Limits
}

func (d *ExecDialer) Dial(ctx context.Context, peer string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	command := strings.TrimSpace(d.Command)
	if command == "" {
		command = peer
	}
	args := d.Args
	if len(args) == 0 {
		args = []string{peer}
	}

	// The helper outlives the dial context; Close owns its lifetime.
	cmd := exec.Command(command, args...)
	cmd.Dir = d.Dir
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	// stdin is an os.Pipe owned here so writes can carry deadlines.
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdin = stdinR
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdinR.Close()
		_ = stdin.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdinR.Close()
		_ = stdin.Close()
		return nil, err
	}
	err = cmd.Start()
	_ = stdinR.Close()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("transport: start %s: %w", command, err)
	}

	logger := logging.Component("transport").With().
		Str("peer", peer).
		Int("pid", cmd.Process.Pid).
		Logger()
	logger.Debug().Str("command", command).Strs("args", args).Msg("native helper started")

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			logger.Info().Str("stream", "stderr").Msg(sc.Text())
		}
	}()

	proc := &process{cmd: cmd, stdin: stdin, stdout: stdout, peer: peer}
	return NewFramedConn(proc, d.Codec, d.Limits), nil
}

// process adapts a running helper to io.ReadWriteCloser.
type process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout io.ReadCloser
	peer   string

	closeOnce sync.Once
	waitErr   error
}

func (p *process) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *process) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *process) SetWriteDeadline(t time.Time) error {
	err := p.stdin.SetWriteDeadline(t)
	if errors.Is(err, os.ErrNoDeadline) {
		return nil
	}
	return err
}

func (p *process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = err
		}
		logger := logging.Component("transport")
		logger.Debug().
			Str("peer", p.peer).
			AnErr("exit", err).
			Msg("native helper reaped")
	})
	return p.waitErr
}
