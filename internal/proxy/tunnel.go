// Package proxy provisions one local forwarding endpoint per account
// run so each browser session gets a distinct, independently routable
// egress path.
package proxy

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// bindAttempts bounds retries against port collisions within the range.
const bindAttempts = 5

// Tunnel is one live forwarding endpoint.
type Tunnel struct {
	addr   string
	server *http.Server
	done   chan struct{}
	once   sync.Once
}

// Addr returns the proxy URL for browser --proxy-server flags.
func (t *Tunnel) Addr() string {
	return t.addr
}

// Close tears the endpoint down, dropping in-flight connections.
func (t *Tunnel) Close() error {
	var err error
	t.once.Do(func() {
		err = t.server.Close()
		<-t.done
	})
	return err
}

// Manager allocates tunnels within a fixed local port range.
type Manager struct {
	portMin int
	portMax int
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a tunnel manager over [portMin, portMax).
func NewManager(portMin, portMax int, log *zap.Logger) *Manager {
	return &Manager{
		portMin: portMin,
		portMax: portMax,
		log:     log,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Open starts a forwarding proxy on a random port within the range.
// The hint only labels log lines; it does not affect allocation.
func (m *Manager) Open(hint string) (*Tunnel, error) {
	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		port := m.randomPort()
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			lastErr = err
			continue
		}

		handler := goproxy.NewProxyHttpServer()
		srv := &http.Server{Handler: handler}
		t := &Tunnel{
			addr:   fmt.Sprintf("http://127.0.0.1:%d", port),
			server: srv,
			done:   make(chan struct{}),
		}

		go func() {
			defer close(t.done)
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				m.log.Warn("proxy tunnel stopped",
					zap.String("account", hint), zap.Error(err))
			}
		}()

		m.log.Info("proxy tunnel opened",
			zap.String("account", hint), zap.String("addr", t.addr))
		return t, nil
	}
	return nil, fmt.Errorf("open tunnel for %s: no free port in [%d, %d) after %d attempts: %w",
		hint, m.portMin, m.portMax, bindAttempts, lastErr)
}

func (m *Manager) randomPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portMin + m.rng.IntN(m.portMax-m.portMin)
}
