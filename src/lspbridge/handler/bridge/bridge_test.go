package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/controller/bridge/bridgemock"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/factory"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/websocketfx/websocketfxmock"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newManager(t *testing.T, ctrl *gomock.Controller, c *bridgemock.MockController, scope tally.Scope) *connectionManager {
	wsmod := websocketfxmock.NewMockWebSocketModule(ctrl)
	wsmod.EXPECT().RegisterConnectionManager(gomock.Any())
	h, err := New(c, wsmod, zap.NewNop().Sugar(), scope)
	require.NoError(t, err)
	return h.(*connectionManager)
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := bridgemock.NewMockController(ctrl)

	t.Run("registered", func(t *testing.T) {
		wsmod := websocketfxmock.NewMockWebSocketModule(ctrl)
		wsmod.EXPECT().RegisterConnectionManager(gomock.Any()).Return(nil)
		h, err := New(c, wsmod, zap.NewNop().Sugar(), tally.NoopScope)
		require.NoError(t, err)
		assert.Zero(t, h.ConnectionCount())
	})

	t.Run("duplicate registration", func(t *testing.T) {
		wsmod := websocketfxmock.NewMockWebSocketModule(ctrl)
		wsmod.EXPECT().RegisterConnectionManager(gomock.Any()).Return(errors.New("cannot register a duplicate connection manager"))
		_, err := New(c, wsmod, zap.NewNop().Sugar(), tally.NoopScope)
		assert.Error(t, err)
	})
}

func TestNewConnection(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := bridgemock.NewMockController(ctrl)
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	mgr := newManager(t, ctrl, c, testScope)

	t.Run("create success", func(t *testing.T) {
		s := bridgemock.NewMockSession(ctrl)
		s.EXPECT().UUID().Return(factory.UUID()).AnyTimes()
		c.EXPECT().InitSession(gomock.Any(), gomock.Any()).Return(s, nil)

		r, err := mgr.NewConnection(ctx, nil)
		assert.NoError(t, err)
		assert.IsType(t, &router{}, r)
		assert.Equal(t, 1, mgr.ConnectionCount())
	})

	t.Run("create failure", func(t *testing.T) {
		c.EXPECT().InitSession(gomock.Any(), gomock.Any()).Return(nil, &bridgeerrors.ProvisionError{Template: "/template", Err: errors.New("disk full")})

		_, err := mgr.NewConnection(ctx, nil)
		assert.True(t, bridgeerrors.IsProvisionError(err))
		assert.Equal(t, 1, mgr.ConnectionCount())
		assert.EqualValues(t, 1, testScope.Snapshot().Counters()["testing.connections.rejected+"].Value())
	})
}

func TestHandleFrame(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := bridgemock.NewMockController(ctrl)
	testScope := tally.NewTestScope("testing", nil)
	mgr := newManager(t, ctrl, c, testScope)

	s := bridgemock.NewMockSession(ctrl)
	s.EXPECT().UUID().Return(factory.UUID()).AnyTimes()
	c.EXPECT().InitSession(gomock.Any(), gomock.Any()).Return(s, nil)
	r, err := mgr.NewConnection(ctx, nil)
	require.NoError(t, err)

	frame := []byte(`{"method":"format","code":"let x=1"}`)
	s.EXPECT().Receive(gomock.Any(), frame).Return(nil)
	assert.NoError(t, r.HandleFrame(ctx, frame))

	s.EXPECT().Receive(gomock.Any(), frame).Return(bridgeerrors.ErrSessionClosing)
	assert.ErrorIs(t, r.HandleFrame(ctx, frame), bridgeerrors.ErrSessionClosing)

	assert.EqualValues(t, 2, testScope.Snapshot().Counters()["testing.connections.frames+"].Value())
}

func TestRemoveConnection(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := bridgemock.NewMockController(ctrl)
	mgr := newManager(t, ctrl, c, tally.NoopScope)

	id := factory.UUID()
	s := bridgemock.NewMockSession(ctrl)
	s.EXPECT().UUID().Return(id).AnyTimes()
	c.EXPECT().InitSession(gomock.Any(), gomock.Any()).Return(s, nil)
	r, err := mgr.NewConnection(ctx, nil)
	require.NoError(t, err)

	s.EXPECT().ClientClosed().Times(1)
	mgr.RemoveConnection(ctx, r.UUID())
	assert.Zero(t, mgr.ConnectionCount())

	// A second removal finds nothing to close.
	mgr.RemoveConnection(ctx, id)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
