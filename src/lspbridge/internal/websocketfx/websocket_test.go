package websocketfx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _apiPath = "/lang-server/api"

var _healthPaths = []string{"/", "/health", "/lang-server", "/lang-server/health"}

func newTestModule(readLimit int64) *module {
	return newModule(Config{
		Address:        "127.0.0.1:0",
		Path:           _apiPath,
		HealthPaths:    _healthPaths,
		ReadLimitBytes: readLimit,
	}, zap.NewNop().Sugar(), tally.NoopScope)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+_apiPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wait(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		params  func(t *testing.T) Params
		wantErr string
	}{
		{
			name:    "missing required params",
			params:  func(t *testing.T) Params { return Params{} },
			wantErr: "required parameters are missing",
		},
		{
			name: "all required params are present",
			params: func(t *testing.T) Params {
				return Params{
					Lifecycle: fxtest.NewLifecycle(t),
					Config:    newConfigProvider(t, "valid"),
					Logger:    zap.NewNop().Sugar(),
					Stats:     tally.NoopScope,
				}
			},
		},
		{
			name: "invalid config",
			params: func(t *testing.T) Params {
				return Params{
					Lifecycle: fxtest.NewLifecycle(t),
					Config:    newConfigProvider(t, "missingAddress"),
				}
			},
			wantErr: `missing field "websocket.address" in config`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.params(t))
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, _apiPath, m.(*module).cfg.Path)
		})
	}
}

func TestProcessConfig(t *testing.T) {
	tests := []struct {
		name        string
		configKey   string
		errorString string
	}{
		{
			name:      "valid configuration",
			configKey: "valid",
		},
		{
			name:        "missing address",
			configKey:   "missingAddress",
			errorString: `missing field "websocket.address" in config`,
		},
		{
			name:        "missing path",
			configKey:   "missingPath",
			errorString: `missing field "websocket.path" in config`,
		},
		{
			name:        "incorrectly formatted entry",
			configKey:   "formatProblem",
			errorString: `getting config field "websocket"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := processConfig(newConfigProvider(t, tt.configKey))
			if tt.errorString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ":5860", cfg.Address)
			assert.Equal(t, _healthPaths, cfg.HealthPaths)
			assert.EqualValues(t, 1024, cfg.ReadLimitBytes)
		})
	}
}

func TestRegisterConnectionManager(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestModule(0)
	mockConnectionManager := NewMockConnectionManager(ctrl)

	// first call should return no error
	assert.NoError(t, m.RegisterConnectionManager(mockConnectionManager))

	// duplicate call should return error
	assert.Error(t, m.RegisterConnectionManager(mockConnectionManager))
}

func TestHealthRoutes(t *testing.T) {
	srv := httptest.NewServer(newTestModule(0).Handler())
	defer srv.Close()

	for _, path := range _healthPaths {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, `{"status":"pass"}`, string(body))
		})
	}

	resp, err := http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpgradeWithoutConnectionManager(t *testing.T) {
	srv := httptest.NewServer(newTestModule(0).Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+_apiPath, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServeConn(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestModule(0)
	id := uuid.Must(uuid.NewV4())

	mockRouter := NewMockRouter(ctrl)
	mockRouter.EXPECT().UUID().Return(id).AnyTimes()
	handled := make(chan struct{})
	mockRouter.EXPECT().HandleFrame(gomock.Any(), []byte(`{"method":"format","code":"x"}`)).DoAndReturn(func(context.Context, []byte) error {
		close(handled)
		return nil
	})

	removed := make(chan struct{})
	mockConnectionManager := NewMockConnectionManager(ctrl)
	mockConnectionManager.EXPECT().NewConnection(gomock.Any(), gomock.Any()).Return(mockRouter, nil)
	mockConnectionManager.EXPECT().RemoveConnection(gomock.Any(), id).Do(func(context.Context, uuid.UUID) { close(removed) })
	require.NoError(t, m.RegisterConnectionManager(mockConnectionManager))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	client := dial(t, srv)

	// Binary frames are not part of the protocol and never reach the router.
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0x1}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"method":"format","code":"x"}`)))
	wait(t, handled, "frame")

	require.NoError(t, client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	wait(t, removed, "connection removal")
}

func TestServeConnReadLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestModule(16)
	id := uuid.Must(uuid.NewV4())

	mockRouter := NewMockRouter(ctrl)
	mockRouter.EXPECT().UUID().Return(id).AnyTimes()

	removed := make(chan struct{})
	mockConnectionManager := NewMockConnectionManager(ctrl)
	mockConnectionManager.EXPECT().NewConnection(gomock.Any(), gomock.Any()).Return(mockRouter, nil)
	mockConnectionManager.EXPECT().RemoveConnection(gomock.Any(), id).Do(func(context.Context, uuid.UUID) { close(removed) })
	require.NoError(t, m.RegisterConnectionManager(mockConnectionManager))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	client := dial(t, srv)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))
	wait(t, removed, "connection removal")
}

func TestServeConnRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestModule(0)

	mockConnectionManager := NewMockConnectionManager(ctrl)
	mockConnectionManager.EXPECT().NewConnection(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, conn *websocket.Conn) (Router, error) {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"), time.Now().Add(time.Second))
		conn.Close()
		return nil, errors.New("provisioning failed")
	})
	require.NoError(t, m.RegisterConnectionManager(mockConnectionManager))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	client := dial(t, srv)

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
}

func TestSetup(t *testing.T) {
	m := newModule(Config{}, nil, nil)
	assert.Error(t, m.setup())
	assert.Error(t, m.OnStart(context.Background()))
	assert.NoError(t, m.OnStop(context.Background()))
}

func TestOnStartOnStop(t *testing.T) {
	m := newTestModule(0)
	ctx := context.Background()
	require.NoError(t, m.OnStart(ctx))

	resp, err := http.Get("http://" + m.ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, m.OnStop(ctx))
	_, err = http.Get("http://" + m.ln.Addr().String() + "/health")
	assert.Error(t, err)
}

func newConfigProvider(t *testing.T, configKey string) config.Provider {
	configs := map[string]string{
		"valid": `
websocket:
  address: :5860
  path: /lang-server/api
  healthPaths: [/, /health, /lang-server, /lang-server/health]
  readLimitBytes: 1024`,
		"missingAddress": `
websocket:
  path: /lang-server/api`,
		"missingPath": `
websocket:
  address: :5860`,
		"formatProblem": `
websocket:
  address:
    key: val`,
	}

	provider, err := config.NewYAML(config.Source(strings.NewReader(configs[configKey])))
	require.NoError(t, err)
	return provider
}
