package metrics

import (
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SweepsTotal.WithLabelValues("up"))
	SweepsTotal.WithLabelValues("up").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SweepsTotal.WithLabelValues("up")))

	SessionPnL.Set(-1.5)
	assert.Equal(t, -1.5, testutil.ToFloat64(SessionPnL))
}

func TestServeExposesMetrics(t *testing.T) {
	srv, err := Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sweepscope_session_pnl")
}

func TestServeReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv, err := Serve(ln.Addr().String())
	assert.Error(t, err)
	assert.Nil(t, srv)
}
