// Package netfanout implements the network fan-out interfaces, spec.md
// §6.2: a length-framed raw buffer TCP stream, and an event-oriented
// protocol exposing structured events as typed messages.
package netfanout

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
)

// RawServer accepts TCP clients and writes each dispatched raw buffer as
// `u32 bufferNumber, u32 bufferSizeWords, u32[bufferSizeWords] data`,
// spec.md §6.2. Clients that fall behind are disconnected; there is no
// acknowledgement.
type RawServer struct {
	ln  net.Listener
	log clog.Clog

	mu      sync.Mutex
	clients map[*rawClient]struct{}
}

type rawClient struct {
	conn  net.Conn
	queue chan *bufpool.Buffer
}

// ListenRaw starts the raw fan-out server on addr.
func ListenRaw(addr string, log clog.Clog) (*RawServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &RawServer{ln: ln, log: log.WithPrefix("netfanout-raw"), clients: make(map[*rawClient]struct{})}
	go s.acceptLoop()
	return s, nil
}

func (s *RawServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &rawClient{conn: conn, queue: make(chan *bufpool.Buffer, 16)}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go s.serveClient(c)
	}
}

func (s *RawServer) serveClient(c *rawClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.conn.Close()
		for buf := range c.queue {
			buf.Release()
		}
	}()
	var hdr [8]byte
	for buf := range c.queue {
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(buf.Number))
		words := len(buf.Data) / 4
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(words))
		if _, err := c.conn.Write(hdr[:]); err != nil {
			buf.Release()
			return
		}
		if _, err := c.conn.Write(buf.Data[:words*4]); err != nil {
			buf.Release()
			return
		}
		buf.Release()
	}
}

// Dispatch sends buf to every connected client, disconnecting any whose
// queue is full rather than blocking the stream worker.
func (s *RawServer) Dispatch(buf *bufpool.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		buf.Retain()
		select {
		case c.queue <- buf:
		default:
			buf.Release()
			c.conn.Close()
			delete(s.clients, c)
		}
	}
}

// Close stops accepting new clients and closes all open connections.
func (s *RawServer) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.queue)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return s.ln.Close()
}

var _ io.Closer = (*RawServer)(nil)
