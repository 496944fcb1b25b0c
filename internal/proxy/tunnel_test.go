package proxy

import (
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenAllocatesWithinRange(t *testing.T) {
	m := NewManager(18000, 18100, zaptest.NewLogger(t))

	tun, err := m.Open("acct-a")
	require.NoError(t, err)
	defer tun.Close()

	require.True(t, strings.HasPrefix(tun.Addr(), "http://127.0.0.1:"))
	port, err := strconv.Atoi(strings.TrimPrefix(tun.Addr(), "http://127.0.0.1:"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 18000)
	assert.Less(t, port, 18100)

	// The endpoint is actually listening.
	conn, err := net.Dial("tcp", strings.TrimPrefix(tun.Addr(), "http://"))
	require.NoError(t, err)
	_ = conn.Close()
}

func TestCloseReleasesPort(t *testing.T) {
	m := NewManager(18200, 18300, zaptest.NewLogger(t))

	tun, err := m.Open("acct-b")
	require.NoError(t, err)
	hostport := strings.TrimPrefix(tun.Addr(), "http://")

	require.NoError(t, tun.Close())

	// Port is free again after a forceful close.
	ln, err := net.Listen("tcp", hostport)
	require.NoError(t, err)
	_ = ln.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewManager(18400, 18500, zaptest.NewLogger(t))

	tun, err := m.Open("acct-c")
	require.NoError(t, err)

	assert.NoError(t, tun.Close())
	assert.NoError(t, tun.Close())
}

func TestSequentialTunnelsGetDistinctEndpoints(t *testing.T) {
	m := NewManager(18600, 18700, zaptest.NewLogger(t))

	a, err := m.Open("acct-a")
	require.NoError(t, err)
	defer a.Close()

	b, err := m.Open("acct-b")
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Addr(), b.Addr())
}
