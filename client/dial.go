package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"
)

const readBufferSize = 4096

// Session ties a Conn to a network connection.
type Session struct {
	*Conn

	netConn net.Conn
	done    chan struct{}
	err     error
	log     *zap.Logger
}

// Dial connects to addr and starts reading from it. An empty addr means the
// default NetSoul server.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	if addr == "" {
		addr = net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort))
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return NewSession(netConn, opts), nil
}

// NewSession runs the protocol over an established connection.
func NewSession(netConn net.Conn, opts Options) *Session {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	s := &Session{
		Conn:    New(netConn, opts),
		netConn: netConn,
		done:    make(chan struct{}),
		log:     opts.Log.Named("session").With(zap.String("remote", netConn.RemoteAddr().String())),
	}

	go s.readLoop()

	return s
}

// Done is closed once the connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, nil for a clean end of stream. It is
// only meaningful once Done is closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Close shuts the connection down and waits for the read loop to exit.
func (s *Session) Close() error {
	err := s.netConn.Close()
	<-s.done

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Quit says goodbye to the server before closing.
func (s *Session) Quit() error {
	if err := s.SendExit(); err != nil {
		s.log.Warn("Failed to send exit", zap.Error(err))
	}

	return s.Close()
}

func (s *Session) readLoop() {
	defer close(s.done)

	buf := make([]byte, readBufferSize)

	for {
		n, err := s.netConn.Read(buf)
		if n > 0 {
			if ferr := s.Feed(buf[:n]); ferr != nil {
				s.log.Warn("Dropping data read after close", zap.Int("bytes", n))
			}
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			s.log.Info("Connection closed")
			s.Conn.Close(nil)
			return
		}

		s.log.Warn("Failed to read from server", zap.Error(err))
		s.err = err
		s.Conn.Close(err)
		return
	}
}
