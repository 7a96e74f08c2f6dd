package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketPort(t *testing.T) {
	hostPorts := make(chan *WebSocketPort, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		port, err := AcceptWebSocket(w, r, nil)
		if err != nil {
			t.Errorf("accept: %s", err)
			return
		}
		hostPorts <- port
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	widgetPort, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	c := NewClient(widgetPort, testWidgetID)
	require.NoError(t, c.Start(ctx))
	defer c.Close() // nolint: errcheck
	c.RequestCapabilities([]string{"org.matrix.msc2931.navigate"})

	h := &host{t: t, port: <-hostPorts}
	defer h.port.Close() // nolint: errcheck
	h.request("cap-1", spec.ActionCapabilities, struct{}{})
	res := h.read()
	assert.JSONEq(t, `{"capabilities":["org.matrix.msc2931.navigate"]}`, string(res.Response))
}
