package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/netsoul/protocol"
	"github.com/luma/netsoul/storage"
)

const (
	WriteQueueSize = 127

	replyOK          = "rep 002 -- cmd end"
	replyAuthFailed  = "rep 033 -- ext user identification fail"
	replyNotLoggedIn = "rep 033 -- ext user identification fail"
	replyUnknown     = "rep 001 -- no such cmd"
)

// Server is a small NetSoul server. It knows enough of the protocol to
// authenticate clients, track their state, answer who queries and relay
// commands between them.
type Server struct {
	addr string

	mu         sync.Mutex
	listener   net.Listener
	conns      map[*ServerConn]struct{}
	nextSocket int
	stopWaiter sync.WaitGroup

	opts Options
	log  *zap.Logger
}

func NewServer(options Options) *Server {
	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	if options.WhoTerminator == "" {
		options.WhoTerminator = protocol.DefaultWhoTerminator
	}

	if options.Group == "" {
		options.Group = "netsoul"
	}

	if options.Store == nil {
		options.Store = storage.NewInmemoryStore()
	}

	return &Server{
		addr:       net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		conns:      make(map[*ServerConn]struct{}),
		nextSocket: 1,
		opts:       options,
		log:        options.Log,
	}
}

// Start listens and accepts connections in the background.
func (s *Server) Start(ctx context.Context) error {
	var (
		listener net.Listener
		err      error
	)

	if s.opts.Reuseport {
		listener, err = reuseport.Listen("tcp", s.addr)
	} else {
		listener, err = net.Listen("tcp", s.addr)
	}

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Listening", zap.String("addr", listener.Addr().String()))

	s.stopWaiter.Add(1)
	go func() {
		defer s.stopWaiter.Done()
		s.acceptLoop(ctx, listener)
	}()

	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			s.log.Warn("Server did not close cleanly", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *Server) Store() storage.Store {
	return s.opts.Store
}

// Close immediately closes the listener and every connection.
func (s *Server) Close() (err error) {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	conns := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener == nil {
		return nil
	}

	s.log.Info("Stopping server")

	if lerr := listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
		err = multierr.Append(err, lerr)
	}

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	s.stopWaiter.Wait()
	s.log.Info("Server stopped")

	return err
}

// Ping sends a keep alive to every connection.
func (s *Server) Ping(ts int64) (err error) {
	for _, conn := range s.connections() {
		err = multierr.Append(err, conn.writeLine(protocol.FormatPing(ts)))
	}

	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new connections
				// that's fine.
				return
			}

			s.log.Error("Failed to accept", zap.Error(err))
			return
		}

		conn := s.newConn(ctx, netConn)

		s.stopWaiter.Add(1)
		go func() {
			defer s.stopWaiter.Done()
			defer s.removeConn(conn)
			conn.Start()
		}()
	}
}

func (s *Server) newConn(ctx context.Context, netConn net.Conn) *ServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	socket := s.nextSocket
	s.nextSocket++

	conn := newServerConn(ctx, s, netConn, socket, s.log.Named("conn").With(zap.Int("socket", socket)))
	s.conns[conn] = struct{}{}

	return conn
}

func (s *Server) removeConn(conn *ServerConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	if login := conn.Login(); login != "" {
		if err := s.opts.Store.Delete(context.Background(), storage.ConnectionKey(login, conn.socket)); err != nil {
			s.log.Warn("Failed to forget connection", zap.Error(err))
		}

		s.notifyWatchers(conn, protocol.CmdLogout)
	}
}

func (s *Server) connections() []*ServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}

	return conns
}

// matching returns the authenticated connections designated by logins.
func (s *Server) matching(logins protocol.LoginList) []*ServerConn {
	var found []*ServerConn

	for _, conn := range s.connections() {
		if !conn.Authenticated() {
			continue
		}

		for _, login := range logins {
			if (login.IsID && login.ID == conn.socket) || (!login.IsID && login.Name == conn.Login()) {
				found = append(found, conn)
				break
			}
		}
	}

	return found
}

func (s *Server) checkPassword(login string, hash string, greeting *protocol.Greeting) bool {
	password, ok := s.opts.Users[login]
	if !ok {
		return false
	}

	return protocol.CredentialHash(greeting, password) == hash
}

// notifyWatchers tells everyone watching conn's login about body.
func (s *Server) notifyWatchers(conn *ServerConn, body string) {
	line := conn.envelope(body)
	login := conn.Login()

	for _, other := range s.connections() {
		if other != conn && other.Watches(login) {
			if err := other.writeLine(line); err != nil {
				s.log.Warn("Failed to notify watcher", zap.Error(err))
			}
		}
	}
}

func (s *Server) recordPresence(conn *ServerConn) {
	if err := s.opts.Store.Set(context.Background(), storage.ConnectionKey(conn.Login(), conn.socket), conn.presence()); err != nil {
		s.log.Warn("Failed to record presence", zap.Error(err))
	}
}

// ServerConn is one client connected to a Server.
type ServerConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	server  *Server
	conn    net.Conn
	socket  int
	ip      string
	port    int
	started time.Time

	greeting protocol.Greeting

	mu            sync.Mutex
	authenticated bool
	login         string
	location      string
	resource      string
	state         protocol.State
	watching      map[string]struct{}

	writeQueue chan []byte

	log *zap.Logger
}

func newServerConn(parentCtx context.Context, server *Server, conn net.Conn, socket int, log *zap.Logger) *ServerConn {
	ctx, cancel := context.WithCancel(parentCtx)

	ip, port := "127.0.0.1", 0
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip, port = addr.IP.String(), addr.Port
	}

	started := time.Now()

	return &ServerConn{
		ctx:     ctx,
		cancel:  cancel,
		server:  server,
		conn:    conn,
		socket:  socket,
		ip:      ip,
		port:    port,
		started: started,
		greeting: protocol.Greeting{
			Socket:    socket,
			Hash:      fmt.Sprintf("%032x", rand.Uint64()),
			IP:        ip,
			Port:      port,
			Timestamp: started.Unix(),
		},
		state:      protocol.State{Name: "connection", Timestamp: started.Unix()},
		watching:   make(map[string]struct{}),
		writeQueue: make(chan []byte, WriteQueueSize),
		log:        log,
	}
}

func (t *ServerConn) Login() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.login
}

func (t *ServerConn) Authenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.authenticated
}

func (t *ServerConn) Watches(login string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.watching[login]
	return ok
}

func (t *ServerConn) Close() error {
	if !t.isRunning() {
		// already stopped
		return nil
	}

	t.cancel()

	err := t.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Start greets the client then runs the read and write loops until either
// side hangs up.
func (t *ServerConn) Start() {
	g := t.greeting
	t.writeLine(fmt.Sprintf("salut %d %s %s %d %d", g.Socket, g.Hash, g.IP, g.Port, g.Timestamp))

	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
}

func (t *ServerConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// Stop the write loop as well
		t.cancel()
		log.Debug("Read loop exited")
	}()

	framer := protocol.NewFramer(nil)
	buf := make([]byte, 4096)

	for {
		n, err := t.conn.Read(buf)
		for _, line := range framer.Push(buf[:n]) {
			if t.server.opts.Trace {
				log.Debug("<", zap.String("line", line))
			}

			if !t.handleLine(line) {
				return
			}
		}

		if err != nil {
			if !t.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}

			log.Debug("Connection closed", zap.Error(err))
			return
		}
	}
}

func (t *ServerConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to close connection cleanly", zap.Error(err))
		}

		log.Debug("Write loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			// Flush what the read loop queued before it stopped
			for {
				select {
				case data := <-t.writeQueue:
					t.conn.Write(data)
				default:
					return
				}
			}

		case data := <-t.writeQueue:
			if _, err := t.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				return
			}
		}
	}
}

func (t *ServerConn) writeLine(line string) error {
	if !t.isRunning() {
		return fmt.Errorf("socket %d: %w", t.socket, net.ErrClosed)
	}

	if t.server.opts.Trace {
		t.log.Debug(">", zap.String("line", line))
	}

	data := append([]byte(line), protocol.Terminal...)

	select {
	case t.writeQueue <- data:
		return nil
	case <-t.ctx.Done():
		return fmt.Errorf("socket %d: %w", t.socket, net.ErrClosed)
	}
}

// handleLine answers one client line. It returns false when the client is
// done with us.
func (t *ServerConn) handleLine(line string) bool {
	tokens := strings.Split(line, " ")

	switch tokens[0] {
	case "":
		// Blank line

	case "exit":
		return false

	case "ping":
		// Client answering our ping, nothing to do

	case "auth_ag":
		t.writeLine(replyOK)

	case "ext_user_log":
		t.authenticate(tokens)

	case "state":
		if len(tokens) < 2 || !t.Authenticated() {
			break
		}

		state, err := protocol.DecodeState(tokens[1])
		if err != nil {
			break
		}

		t.mu.Lock()
		t.state = state
		t.mu.Unlock()

		t.server.recordPresence(t)
		t.server.notifyWatchers(t, protocol.CmdState+" "+state.String())

	case "user_cmd":
		if !t.Authenticated() {
			t.writeLine(replyNotLoggedIn)
			break
		}

		t.userCmd(tokens[1:])

	default:
		t.writeLine(replyUnknown)
	}

	return true
}

func (t *ServerConn) authenticate(tokens []string) {
	if len(tokens) != 5 || !t.server.checkPassword(tokens[1], tokens[2], &t.greeting) {
		t.log.Info("Authentication failed")
		t.writeLine(replyAuthFailed)
		return
	}

	t.mu.Lock()
	t.authenticated = true
	t.login = tokens[1]
	t.location = protocol.Unescape(tokens[3])
	t.resource = protocol.Unescape(tokens[4])
	t.mu.Unlock()

	t.log.Info("Authenticated", zap.String("login", tokens[1]))

	t.writeLine(replyOK)
	t.server.recordPresence(t)
	t.server.notifyWatchers(t, protocol.CmdLogin)
}

func (t *ServerConn) userCmd(args []string) {
	if len(args) < 2 {
		t.writeLine(replyUnknown)
		return
	}

	logins := protocol.ParseLoginList(args[1])

	switch args[0] {
	case "watch_log_user":
		t.mu.Lock()
		t.watching = make(map[string]struct{})
		for _, login := range logins {
			t.watching[login.String()] = struct{}{}
		}
		t.mu.Unlock()

	case "who":
		for _, other := range t.server.matching(logins) {
			t.writeLine(t.envelope(protocol.CmdWho + " " + other.whoRow()))
		}

		t.writeLine(t.envelope(protocol.CmdWho + " " + t.server.opts.WhoTerminator + " -- cmd end"))

	case "msg_user":
		if len(args) != 4 {
			t.writeLine(replyUnknown)
			return
		}

		line := t.envelope(fmt.Sprintf("%s %s dst=%s", args[2], args[3], args[1]))
		for _, other := range t.server.matching(logins) {
			if err := other.writeLine(line); err != nil {
				t.log.Warn("Failed to relay command", zap.Error(err))
			}
		}

	default:
		t.writeLine(replyUnknown)
	}
}

// envelope wraps body in a user_cmd line coming from t.
func (t *ServerConn) envelope(body string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("user_cmd %d:user:1/3:%s@%s:~:%s:%s | %s",
		t.socket, t.login, t.ip, protocol.Escape(t.location), t.server.opts.Group, body)
}

func (t *ServerConn) whoRow() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.Join([]string{
		strconv.Itoa(t.socket),
		t.login,
		t.ip,
		strconv.FormatInt(t.started.Unix(), 10),
		strconv.FormatInt(t.state.Timestamp, 10),
		"1",
		"3",
		"~",
		protocol.Escape(t.location),
		t.server.opts.Group,
		t.state.String(),
		protocol.Escape(t.resource),
	}, " ")
}

func (t *ServerConn) presence() storage.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	return storage.Connection{
		Socket:    t.socket,
		IP:        t.ip,
		Location:  t.location,
		Group:     t.server.opts.Group,
		State:     t.state.Name,
		Since:     t.state.Timestamp,
		Resource:  t.resource,
		LoginTime: t.started.Unix(),
	}
}

// isRunning returns true if Close has not been called
func (t *ServerConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}
