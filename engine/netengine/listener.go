package netengine

import (
	"net"
	"sync/atomic"
)

// countingListener counts traffic on accepted connections and drops
// clients a filter does not allow.
type countingListener struct {
	net.Listener
	sent     *atomic.Int64
	received *atomic.Int64
	filter   *filter
}

func (l *countingListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.filter != nil && !l.filter.allows(c.RemoteAddr()) {
			_ = c.Close()
			continue
		}
		return &countingConn{Conn: c, sent: l.sent, received: l.received}, nil
	}
}

type countingConn struct {
	net.Conn
	sent     *atomic.Int64
	received *atomic.Int64
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.received.Add(int64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.sent.Add(int64(n))
	return n, err
}
