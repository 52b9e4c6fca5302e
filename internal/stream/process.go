package stream

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Process is a running encoder fed raw frames on its standard input.
type Process interface {
	Write(frame []byte) (int, error)
	CloseInput() error
	Wait() error
	Kill() error
}

type Spawner interface {
	Spawn(args []string) (Process, error)
}

// ExecSpawner starts the encoder binary as a child process in its own process group.
type ExecSpawner struct {
	Binary string
}

func NewExecSpawner(binary string) *ExecSpawner {
	return &ExecSpawner{Binary: binary}
}

func (s *ExecSpawner) Spawn(args []string) (Process, error) {
	cmd := exec.Command(s.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", s.Binary, err)
	}
	return &execProcess{cmd: cmd, stdin: stdin}, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (p *execProcess) Write(frame []byte) (int, error) {
	return p.stdin.Write(frame)
}

func (p *execProcess) CloseInput() error {
	return p.stdin.Close()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// Kill terminates the whole process group.
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
