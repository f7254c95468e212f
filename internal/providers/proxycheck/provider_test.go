package proxycheck

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// proxyFixture runs an HTTP server that answers absolute-URI requests
// the way a forward proxy does, and returns it as a Proxy record.
func proxyFixture(t *testing.T, handler http.HandlerFunc) *types.Proxy {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return &types.Proxy{Type: types.ProxyHTTP, Host: host, Port: port}
}

func TestCheckThroughHTTPProxy(t *testing.T) {
	var sawAbsoluteURI bool
	proxy := proxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		sawAbsoluteURI = r.URL.IsAbs()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("203.0.113.7"))
	})

	c := New(nil)
	result, err := c.Check(context.Background(), proxy, &types.ProxyCheckRequest{URL: "http://probe.invalid/ip"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.GreaterOrEqual(t, result.LatencyMS, int64(0))
	assert.True(t, sawAbsoluteURI, "request should have gone through the proxy")
}

func TestCheckUnreachableProxyIsResultNotError(t *testing.T) {
	// A port nothing listens on.
	proxy := &types.Proxy{Type: types.ProxyHTTP, Host: "127.0.0.1", Port: 1}

	c := New(nil)
	result, err := c.Check(context.Background(), proxy, &types.ProxyCheckRequest{URL: "http://probe.invalid/ip", TimeoutMS: 500})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	proxy := &types.Proxy{Type: types.ProxyHTTP, Host: "127.0.0.1", Port: 1}
	req := &types.ProxyCheckRequest{URL: "http://probe.invalid/ip", TimeoutMS: 200}

	c := New(nil)
	for i := 0; i < 3; i++ {
		result, err := c.Check(context.Background(), proxy, req)
		require.NoError(t, err)
		assert.False(t, result.OK)
	}

	result, err := c.Check(context.Background(), proxy, req)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "retry later")
}

func TestCheckNoProxyConfigured(t *testing.T) {
	c := New(nil)
	_, err := c.Check(context.Background(), nil, nil)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "proxy", verr.Field)
}

func TestCheckRejectsBadProbeURL(t *testing.T) {
	proxy := &types.Proxy{Type: types.ProxyHTTP, Host: "127.0.0.1", Port: 3128}

	c := New(nil)
	_, err := c.Check(context.Background(), proxy, &types.ProxyCheckRequest{URL: "ftp://probe.invalid"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "url", verr.Field)
}

func TestProxyURL(t *testing.T) {
	tests := []struct {
		name  string
		proxy *types.Proxy
		want  string
	}{
		{
			name:  "http",
			proxy: &types.Proxy{Type: types.ProxyHTTP, Host: "10.0.0.5", Port: 3128},
			want:  "http://10.0.0.5:3128",
		},
		{
			name:  "socks5",
			proxy: &types.Proxy{Type: types.ProxySOCKS5, Host: "10.0.0.5", Port: 1080},
			want:  "socks5://10.0.0.5:1080",
		},
		{
			name:  "with credentials",
			proxy: &types.Proxy{Type: types.ProxyHTTP, Host: "10.0.0.5", Port: 3128, Username: "u", Password: "p"},
			want:  "http://u:p@10.0.0.5:3128",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, proxyURL(tt.proxy))
		})
	}
}
