package executor

import (
	"bytes"
	"io"
	"os/exec"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a module to inject using fx.
var Module = fx.Provide(func(logger *zap.SugaredLogger) Executor {
	return NewExecutor(WithLogger(logger.Named("exec")))
})

// Executor runs the external tools the bridge shells out to, such as the formatter.
type Executor interface {
	// Run logs and executes cmd, capturing its output. exitCode is -1 when the command never started.
	Run(cmd *exec.Cmd) (stdout string, stderr string, exitCode int, err error)
}

type executorImp struct {
	Logger *zap.SugaredLogger
}

// Option defines options to customize executorImp's behavior
type Option func(*executorImp)

// WithLogger overrides the default noop logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(executor *executorImp) {
		executor.Logger = logger
	}
}

// NewExecutor creates an Executor that logs to a noop logger unless WithLogger is given.
func NewExecutor(opts ...Option) Executor {
	executor := &executorImp{
		Logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

func (l *executorImp) Run(cmd *exec.Cmd) (stdout string, stderr string, exitCode int, err error) {
	if err := l.logCommand(cmd); err != nil {
		return "", "", -1, err
	}

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	start := time.Now()
	err = cmd.Run()
	// ProcessState is nil when the command never started, which ExitCode reports as -1.
	exitCode = cmd.ProcessState.ExitCode()
	l.Logger.Debugw("Exec finished", "Path", cmd.Path, "ExitCode", exitCode, "Duration", time.Since(start))

	return out.String(), errOut.String(), exitCode, err
}

// Logs the command specified: Path, Dir, Args and the size of Stdin (if available).
// Stdin carries user source code, so only its length is recorded.
func (l *executorImp) logCommand(cmd *exec.Cmd) error {
	logKeysAndValues := []interface{}{
		"Path", cmd.Path,
		"Dir", cmd.Dir,
		"Args", cmd.Args[1:], // First arg is always the command itself
	}

	if cmd.Stdin != nil {
		stdinBytes, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return err
		}
		logKeysAndValues = append(logKeysAndValues, "StdinBytes", len(stdinBytes))
		cmd.Stdin = bytes.NewReader(stdinBytes)
	}

	l.Logger.Infow("Exec", logKeysAndValues...)
	return nil
}
