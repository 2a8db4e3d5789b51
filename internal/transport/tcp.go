package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/signgrid/signgrid-core/internal/infrastructure/config"
	"github.com/signgrid/signgrid-core/internal/protocol"
)

// maxFrameLength bounds the declared LENGTH field of inbound frames.
// The largest legitimate frame is a multi-message with a download URL;
// anything near this limit is garbage or abuse.
const maxFrameLength = 4096

// TCPServer accepts direct device connections on the fleet port.
//
// Each accepted connection gets its own session from the SessionBuilder
// and a read loop that reassembles frames and feeds them to the session.
// The connection's lifetime is the session's lifetime: when the session
// closes (handshake timeout, liveness lost, eviction), the link closes
// and the read loop exits.
type TCPServer struct {
	cfg     config.TCPConfig
	build   SessionBuilder
	logger  Logger
	timeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	started  bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTCPServer creates a TCP transport for the given config. Sessions are
// built through the supplied builder when devices connect; sendTimeout
// bounds each frame write.
func NewTCPServer(cfg config.TCPConfig, sendTimeout time.Duration, build SessionBuilder) *TCPServer {
	return &TCPServer{
		cfg:     cfg,
		build:   build,
		logger:  noopLogger{},
		timeout: sendTimeout,
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the server.
func (s *TCPServer) SetLogger(logger Logger) {
	s.logger = logger
}

// Start binds the listen socket and begins accepting connections.
func (s *TCPServer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = true
	s.mu.Unlock()

	s.logger.Info("tcp transport listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(listener)

	return nil
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn runs one device connection: build the session, start the
// handshake, then pump frames until the link dies.
func (s *TCPServer) serveConn(conn net.Conn) {
	defer s.wg.Done()

	link := newTCPLink(conn, s.timeout)
	sess := s.build(link)

	if err := sess.Start(); err != nil {
		s.logger.Warn("session start failed", "remote", link.RemoteAddr(), "error", err)
		return
	}

	reader := newFrameReader(conn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				s.logger.Debug("read loop ended", "remote", link.RemoteAddr(), "error", err)
			}
			sess.Close()
			return
		}

		cmd, deviceID, err := protocol.Decode(frame)
		if err != nil {
			// A corrupt frame kills the connection; resynchronising a
			// byte stream mid-frame is not worth the ambiguity.
			s.logger.Warn("dropping connection on bad frame",
				"remote", link.RemoteAddr(), "error", err)
			sess.Close()
			return
		}

		if err := sess.HandleFrame(cmd, deviceID); err != nil {
			s.logger.Debug("frame rejected",
				"remote", link.RemoteAddr(), "command", cmd.Type().String(), "error", err)
		}
	}
}

// Close stops accepting and waits for connection goroutines to finish.
// Individual sessions are closed by their owners (registry shutdown).
func (s *TCPServer) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener != nil {
			listener.Close()
		}
	})
	s.wg.Wait()
	return nil
}

// frameReader reassembles protocol frames from a byte stream.
type frameReader struct {
	r io.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r}
}

// ReadFrame reads exactly one frame: the 3-byte header first, then the
// remainder once the declared length is known.
func (fr *frameReader) ReadFrame() ([]byte, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(fr.r, header); err != nil {
		return nil, err
	}
	if header[0] != protocol.STX {
		return nil, fmt.Errorf("%w: stream out of sync", protocol.ErrFraming)
	}

	length := int(binary.LittleEndian.Uint16(header[1:3]))
	if length > maxFrameLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}

	// COMMAND+DATA+CHECKSUM, then ID and ETX.
	rest := make([]byte, length+protocol.IDLength+1)
	if _, err := io.ReadFull(fr.r, rest); err != nil {
		return nil, err
	}

	return append(header, rest...), nil
}

// tcpLink adapts a net.Conn to the session.Link interface.
type tcpLink struct {
	conn    net.Conn
	timeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newTCPLink(conn net.Conn, timeout time.Duration) *tcpLink {
	return &tcpLink{conn: conn, timeout: timeout}
}

// SendFrame writes one frame with a write deadline.
func (l *tcpLink) SendFrame(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.conn.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := l.conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// RemoteAddr describes the peer for logging.
func (l *tcpLink) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}

// Close shuts the connection down. Safe to call multiple times.
func (l *tcpLink) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
