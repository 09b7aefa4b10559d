package server

import (
	"container/heap"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/ftpkit/ftpkit/internal/throttle"
)

// portItem is one pooled data port. priority grows every time the port
// is returned, so recently used (or misbehaving) ports drift to the
// back of the line; seq keeps insertion order on equal priorities.
type portItem struct {
	priority int
	seq      int
	port     int
}

type portHeap []portItem

func (h portHeap) Len() int { return len(h) }
func (h portHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h portHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *portHeap) Push(x interface{}) { *h = append(*h, x.(portItem)) }
func (h *portHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// portPool owns the configured passive data ports as a priority queue.
type portPool struct {
	mu   sync.Mutex
	heap portHeap
	seq  int
}

func newPortPool(ports []int) *portPool {
	p := &portPool{}
	for _, port := range ports {
		p.push(port, 0)
	}
	return p
}

func (p *portPool) push(port, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	heap.Push(&p.heap, portItem{priority: priority, seq: p.seq, port: port})
	p.seq++
}

func (p *portPool) pop() (portItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.heap) == 0 {
		return portItem{}, false
	}
	return heap.Pop(&p.heap).(portItem), true
}

// ports returns the pooled port numbers (unordered), for inspection.
func (p *portPool) ports() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.heap))
	for _, item := range p.heap {
		out = append(out, item.port)
	}
	return out
}

// releaseDataPort returns a pooled port. No-op for unconstrained
// servers.
func (s *Server) releaseDataPort(port, priority int) {
	if s.dataPorts == nil || port == 0 {
		return
	}
	s.dataPorts.push(port, priority)
}

// startPassiveServer opens the passive listener for this session and
// begins its single-shot accept loop.
//
// With a configured port pool the lowest-priority port is tried first;
// a port that cannot be bound because the address is in use goes to the
// back of the line and the next candidate is tried. Once every pooled
// port has been seen in this round the attempt fails with
// ErrNoAvailablePort. Without a pool the OS picks an ephemeral port.
func (s *session) startPassiveServer() error {
	var (
		ln       net.Listener
		port     int
		priority int
	)
	if pool := s.server.dataPorts; pool != nil {
		viewed := make(map[int]bool)
		for {
			item, ok := pool.pop()
			if !ok {
				return ErrNoAvailablePort
			}
			if viewed[item.port] {
				pool.push(item.port, item.priority)
				return ErrNoAvailablePort
			}
			viewed[item.port] = true
			var err error
			ln, err = net.Listen("tcp", net.JoinHostPort(s.serverHost, strconv.Itoa(item.port)))
			if err != nil {
				pool.push(item.port, item.priority+1)
				if errors.Is(err, syscall.EADDRINUSE) {
					continue
				}
				return err
			}
			port, priority = item.port, item.priority
			break
		}
	} else {
		var err error
		ln, err = net.Listen("tcp", net.JoinHostPort(s.serverHost, "0"))
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.passiveServer = ln
	s.passivePort = port
	s.passivePriority = priority
	s.mu.Unlock()

	go s.acceptDataConns(ln)
	return nil
}

// acceptDataConns binds inbound connections as the session's data
// channel, sharing the command channel's throttle set so every limit
// layer applies to the transfer. A connection that arrives while one is
// still bound is closed immediately; once a transfer worker has claimed
// the bound one, the next connection on the same listener is bound.
func (s *session) acceptDataConns(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if s.server.tlsConfig != nil {
			conn = tls.Server(conn, s.server.tlsConfig)
		}
		st := throttle.NewStream(conn, s.stream.Throttles(),
			s.server.socketTimeout, s.server.socketTimeout)
		s.setDataConn(st)
	}
}

// passiveAddr returns the advertised IP and the bound port of the
// passive listener.
func (s *session) passiveAddr() (net.IP, int) {
	s.mu.Lock()
	ln := s.passiveServer
	s.mu.Unlock()
	if ln == nil {
		return nil, 0
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return nil, 0
	}
	ip := addr.IP
	if forced := s.server.pasvForcedAddress; forced != "" {
		// Behind NAT the server must advertise its external address or
		// the client cannot reach the data port.
		if parsed := net.ParseIP(forced); parsed != nil {
			ip = parsed
		}
	} else if ip.IsUnspecified() || ip == nil {
		ip = net.ParseIP(s.serverHost)
	}
	return ip, addr.Port
}
