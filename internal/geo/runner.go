package geo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// Invocation is one request to the conversion tool.
type Invocation struct {
	Tool      string // resolved executable path
	Input     string // primary geometry file
	Output    string // exchange document to write
	Format    string // OGR driver name, e.g. "GeoJSON"
	SourceSRS string // -a_srs
	TargetSRS string // -t_srs
}

// Args renders the ogr2ogr argument list.
func (inv Invocation) Args() []string {
	var args []string
	if inv.TargetSRS != "" {
		args = append(args, "-t_srs", inv.TargetSRS)
	}
	if inv.SourceSRS != "" {
		args = append(args, "-a_srs", inv.SourceSRS)
	}
	args = append(args, "-f", inv.Format, inv.Output, inv.Input)
	return args
}

// Runner executes an Invocation. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// CommandRunner runs the tool as a subprocess in its own process group so
// a cancelled context takes down anything it spawned.
type CommandRunner struct{}

func (CommandRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := exec.Command(inv.Tool, inv.Args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &ConversionError{Tool: inv.Tool, Input: inv.Input, Err: fmt.Errorf("start: %w", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return &ConversionError{Tool: inv.Tool, Input: inv.Input, Stderr: stderr.String(), Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return &ConversionError{Tool: inv.Tool, Input: inv.Input, Stderr: stderr.String(), Err: err}
	}
}
