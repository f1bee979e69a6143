package formatter

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/executor"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/executor/executormock"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _source = "let  x=1\n"

func newGateway(t *testing.T, exec executor.Executor, timeout time.Duration) (Gateway, tally.TestScope) {
	stats := tally.NewTestScope("testing", nil)
	g := NewWithConfig(Config{
		Path:          "/opt/swift-format",
		TimeoutMillis: int(timeout / time.Millisecond),
	}, exec, zap.NewNop().Sugar(), stats)
	return g, stats
}

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		provider, err := config.NewYAML(config.Source(strings.NewReader(`
formatter:
  path: /opt/swift-format
  args: [--configuration, /opt/.swift-format]
  timeoutMillis: 250
`)))
		require.NoError(t, err)

		g, err := New(Params{
			Config:   provider,
			Executor: executor.NewExecutor(),
			Logger:   zap.NewNop().Sugar(),
			Stats:    tally.NoopScope,
		})
		require.NoError(t, err)
		impl := g.(*gateway)
		assert.Equal(t, "/opt/swift-format", impl.path)
		assert.Equal(t, []string{"--configuration", "/opt/.swift-format"}, impl.args)
		assert.Equal(t, 250*time.Millisecond, impl.timeout)
	})

	t.Run("missing path", func(t *testing.T) {
		provider, err := config.NewYAML(config.Source(strings.NewReader("formatter:\n  timeoutMillis: 250\n")))
		require.NoError(t, err)

		_, err = New(Params{
			Config:   provider,
			Executor: executor.NewExecutor(),
			Logger:   zap.NewNop().Sugar(),
			Stats:    tally.NoopScope,
		})
		assert.ErrorContains(t, err, "formatter.path")
	})
}

func TestFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	executorMock := executormock.NewMockExecutor(ctrl)
	g, stats := newGateway(t, executorMock, time.Second)

	executorMock.EXPECT().Run(gomock.Any()).DoAndReturn(func(cmd *exec.Cmd) (string, string, int, error) {
		assert.Equal(t, "/opt/swift-format", cmd.Path)
		input, err := io.ReadAll(cmd.Stdin)
		require.NoError(t, err)
		assert.Equal(t, _source, string(input))
		return "let x = 1\n", "", 0, nil
	})

	assert.Equal(t, "let x = 1\n", g.Format(context.Background(), _source))
	assert.EqualValues(t, 1, stats.Snapshot().Counters()["testing.formatter.formatted+"].Value())
}

func TestFormatFallsBackToInput(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		exitCode int
		err      error
		reason   string
	}{
		{
			name:     "launch failure",
			exitCode: -1,
			err:      exec.ErrNotFound,
			reason:   "error",
		},
		{
			name:     "non-zero exit",
			stdout:   "partial",
			exitCode: 1,
			err:      errors.New("exit status 1"),
			reason:   "error",
		},
		{
			name:     "non-zero exit without error",
			exitCode: 2,
			reason:   "nonzero_exit",
		},
		{
			name:   "invalid utf-8",
			stdout: "let x = \xff\xfe",
			reason: "invalid_output",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			executorMock := executormock.NewMockExecutor(ctrl)
			g, stats := newGateway(t, executorMock, time.Second)

			executorMock.EXPECT().Run(gomock.Any()).Return(tt.stdout, "stderr", tt.exitCode, tt.err)

			assert.Equal(t, _source, g.Format(context.Background(), _source))
			key := "testing.formatter.fallbacks+reason=" + tt.reason
			require.Contains(t, stats.Snapshot().Counters(), key)
			assert.EqualValues(t, 1, stats.Snapshot().Counters()[key].Value())
		})
	}
}

func TestFormatTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	executorMock := executormock.NewMockExecutor(ctrl)
	g, stats := newGateway(t, executorMock, 10*time.Millisecond)

	executorMock.EXPECT().Run(gomock.Any()).DoAndReturn(func(*exec.Cmd) (string, string, int, error) {
		time.Sleep(50 * time.Millisecond)
		return "", "", -1, errors.New("signal: killed")
	})

	assert.Equal(t, _source, g.Format(context.Background(), _source))
	assert.EqualValues(t, 1, stats.Snapshot().Counters()["testing.formatter.fallbacks+reason=timeout"].Value())
}

func TestFormatWithRealProcess(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat is not available")
	}
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false is not available")
	}
	run := executor.NewExecutor()

	t.Run("identity formatter", func(t *testing.T) {
		g := NewWithConfig(Config{Path: cat}, run, zap.NewNop().Sugar(), tally.NoopScope)
		assert.Equal(t, _source, g.Format(context.Background(), _source))
	})

	t.Run("failing formatter", func(t *testing.T) {
		g := NewWithConfig(Config{Path: falseBin}, run, zap.NewNop().Sugar(), tally.NoopScope)
		assert.Equal(t, _source, g.Format(context.Background(), _source))
	})

	t.Run("missing formatter", func(t *testing.T) {
		g := NewWithConfig(Config{Path: "/nonexistent/swift-format"}, run, zap.NewNop().Sugar(), tally.NoopScope)
		assert.Equal(t, _source, g.Format(context.Background(), _source))
	})
}
