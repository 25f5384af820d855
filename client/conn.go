package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/netsoul/protocol"
)

const (
	DefaultResource = "netsoul-protocol"
	DefaultHost     = "ns-server.epita.fr"
	DefaultPort     = 4242
)

var (
	ErrConnectionClosed = errors.New("Connection closed")
	ErrNoGreeting       = errors.New("Greeting never received")
)

type Options struct {
	// Location is advertised to other users when authenticating.
	Location string

	// Resource names the client software.
	Resource string

	// AutoPing echoes every ping from the server.
	AutoPing bool

	// LineDelimiter splits incoming data into lines.
	LineDelimiter *regexp.Regexp

	// WhoTerminator is the token marking the end of a who listing.
	WhoTerminator string

	Handler EventHandler

	Log *zap.Logger
}

// DefaultOptions returns the options a client gets unless told otherwise.
func DefaultOptions() Options {
	return Options{
		Location:      defaultLocation(),
		Resource:      DefaultResource,
		AutoPing:      true,
		LineDelimiter: protocol.DefaultLineDelimiter,
		WhoTerminator: protocol.DefaultWhoTerminator,
	}
}

func defaultLocation() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}

	return DefaultResource
}

// Info describes our own connection, as the server announced it.
type Info struct {
	Socket int
	IP     string
	Port   int
}

// Conn is a NetSoul session. Bytes read from the server go in through Feed
// (or Write), lines for the server come out through the sink.
//
// Events are delivered to the handler on the goroutine calling Feed, and on
// the goroutine calling a Send method for LineSent. A handler may call any
// method of Conn except Feed and Write.
type Conn struct {
	opts Options
	log  *zap.Logger

	sink    io.Writer
	writeMu sync.Mutex

	// Owned by the read path.
	readMu     sync.Mutex
	framer     *protocol.Framer
	rosterRows []protocol.RosterRow

	mu        sync.Mutex
	closed    bool
	greeting  *protocol.Greeting
	authState AuthState
	replies   fifo[*Future[protocol.Reply]]
	rosters   fifo[*rosterQuery]
}

// New returns a Conn writing its lines to sink. Empty options fall back to
// their defaults, except AutoPing.
func New(sink io.Writer, opts Options) *Conn {
	defaults := DefaultOptions()

	if opts.Location == "" {
		opts.Location = defaults.Location
	}

	if opts.Resource == "" {
		opts.Resource = defaults.Resource
	}

	if opts.LineDelimiter == nil {
		opts.LineDelimiter = defaults.LineDelimiter
	}

	if opts.WhoTerminator == "" {
		opts.WhoTerminator = defaults.WhoTerminator
	}

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	return &Conn{
		opts:      opts,
		log:       opts.Log,
		sink:      sink,
		framer:    protocol.NewFramer(opts.LineDelimiter),
		authState: AuthIdle,
	}
}

// Feed hands bytes read from the server to the engine. Every line completed
// by chunk is processed before Feed returns.
func (c *Conn) Feed(chunk []byte) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	if c.authState == AuthIdle {
		c.authState = AuthAwaitingGreeting
	}
	c.mu.Unlock()

	if closed {
		return ErrConnectionClosed
	}

	for _, line := range c.framer.Push(chunk) {
		c.handleLine(line)
	}

	return nil
}

// Write implements io.Writer on top of Feed so a connection can be copied
// straight into the engine.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.Feed(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close ends the session. Every request still waiting for an answer fails
// with an error wrapping ErrConnectionClosed, and cause when it is not nil.
func (c *Conn) Close(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.closed = true
	replies := c.replies.drain()
	rosters := c.rosters.drain()
	c.mu.Unlock()

	err := ErrConnectionClosed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}

	for _, f := range replies {
		f.reject(err)
	}

	for _, q := range rosters {
		q.future.reject(err)
	}

	c.log.Debug("Session closed",
		zap.Int("pendingReplies", len(replies)),
		zap.Int("pendingRosters", len(rosters)),
		zap.Error(cause))

	c.emit(SessionEnded{Err: cause})
}

// Info returns what the greeting told us about our own connection.
func (c *Conn) Info() (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.greeting == nil {
		return Info{}, false
	}

	return Info{Socket: c.greeting.Socket, IP: c.greeting.IP, Port: c.greeting.Port}, true
}

// Greeting returns a copy of the greeting, if one was received.
func (c *Conn) Greeting() (protocol.Greeting, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.greeting == nil {
		return protocol.Greeting{}, false
	}

	return *c.greeting, true
}

func (c *Conn) SendExit() error {
	return c.send(protocol.ExitLine)
}

func (c *Conn) SendPing(ts int64) error {
	return c.send(protocol.FormatPing(ts))
}

// SendState sets our presence state. A zero at means now.
func (c *Conn) SendState(state string, at time.Time) error {
	return c.send(protocol.FormatState(state, at))
}

// SendWatch asks to be told when logins log in, out or change state.
func (c *Conn) SendWatch(logins protocol.LoginList) error {
	return c.send(protocol.FormatWatch(logins))
}

// SendCommand sends an arbitrary peer command to dests.
func (c *Conn) SendCommand(cmd string, data string, dests protocol.LoginList) error {
	return c.send(protocol.FormatCommand(cmd, data, dests))
}

func (c *Conn) SendMessage(msg string, dests protocol.LoginList) error {
	return c.SendCommand(protocol.CmdMsg, msg, dests)
}

func (c *Conn) SendTyping(dests protocol.LoginList) error {
	return c.SendCommand(protocol.CmdTyping, "null", dests)
}

func (c *Conn) SendCancelledTyping(dests protocol.LoginList) error {
	return c.SendCommand(protocol.CmdCancelledTyping, "null", dests)
}

func (c *Conn) SendFileAsk(name string, size int64, desc string, dests protocol.LoginList) error {
	return c.SendCommand(protocol.CmdFileAsk, protocol.FormatFileAsk(name, size, desc), dests)
}

func (c *Conn) SendFileStart(name string, ip string, port int, dests protocol.LoginList) error {
	return c.SendCommand(protocol.CmdFileStart, protocol.FormatFileStart(name, ip, port), dests)
}

// SendAuthRequest asks the server for the right to authenticate.
func (c *Conn) SendAuthRequest() *Future[protocol.Reply] {
	return c.request(protocol.AuthRequestLine)
}

// SendCredentials submits the credential hash along with our location and
// resource.
func (c *Conn) SendCredentials(login string, hash string) *Future[protocol.Reply] {
	return c.request(protocol.FormatCredentials(login, hash, c.opts.Location, c.opts.Resource))
}

// QueryRoster asks for the connections of logins. The Future resolves once
// the listing ends.
func (c *Conn) QueryRoster(logins protocol.LoginList) *Future[RosterResult] {
	if c.isClosed() {
		return failedFuture[RosterResult](ErrConnectionClosed)
	}

	line := protocol.FormatWho(logins)
	c.emit(LineSent{Line: line})

	future := newFuture[RosterResult]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		future.reject(ErrConnectionClosed)
		return future
	}

	c.rosters.push(&rosterQuery{logins: logins, future: future})
	err := c.write(line)
	if err != nil {
		c.rosters.dropLast()
	}
	c.mu.Unlock()

	if err != nil {
		future.reject(err)
	}

	return future
}

// request sends a line answered by a rep line. The pending Future is queued
// in the same critical section as the write so queue order is wire order.
func (c *Conn) request(line string) *Future[protocol.Reply] {
	if c.isClosed() {
		return failedFuture[protocol.Reply](ErrConnectionClosed)
	}

	c.emit(LineSent{Line: line})

	future := newFuture[protocol.Reply]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		future.reject(ErrConnectionClosed)
		return future
	}

	c.replies.push(future)
	err := c.write(line)
	if err != nil {
		c.replies.dropLast()
	}
	c.mu.Unlock()

	if err != nil {
		future.reject(err)
	}

	return future
}

func (c *Conn) send(line string) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}

	c.emit(LineSent{Line: line})

	return c.write(line)
}

func (c *Conn) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := protocol.WriteLine(c.sink, line); err != nil {
		c.log.Warn("Failed to write line", zap.String("line", line), zap.Error(err))
		return fmt.Errorf("Failed to write '%s': %w", line, err)
	}

	return nil
}

func (c *Conn) handleLine(line string) {
	c.emit(LineReceived{Line: line})

	msg, err := protocol.ParseLine(line)
	if err != nil {
		c.log.Debug("Unrecognized line", zap.String("line", line), zap.Error(err))
		c.emit(UnrecognizedLine{Tokens: strings.Split(line, " "), Err: err})
		return
	}

	switch m := msg.(type) {
	case nil:
		// Blank line, nothing to do

	case *protocol.Reply:
		c.onReply(*m)

	case *protocol.Ping:
		c.emit(PingReceived{Timestamp: m.Timestamp})

		if c.opts.AutoPing {
			if err := c.SendPing(m.Timestamp); err != nil {
				c.log.Warn("Failed to answer ping", zap.Error(err))
			}
		}

	case *protocol.Greeting:
		c.onGreeting(*m)

	case *protocol.UserCommand:
		c.dispatch(m)

	case *protocol.Unknown:
		c.emit(UnrecognizedLine{Tokens: m.Tokens})
	}
}

func (c *Conn) onReply(reply protocol.Reply) {
	c.emit(ReplyReceived{Reply: reply})

	c.mu.Lock()
	future, ok := c.replies.pop()
	c.mu.Unlock()

	if !ok {
		c.log.Debug("Unexpected reply", zap.Int("code", reply.Code), zap.String("text", reply.Text))
		c.emit(UnexpectedReply{Reply: reply})
		return
	}

	future.resolve(reply)
}

func (c *Conn) onGreeting(greeting protocol.Greeting) {
	c.mu.Lock()
	previous := c.greeting
	c.greeting = &greeting
	if c.authState == AuthAwaitingGreeting {
		c.authState = AuthGreetingReceived
	}
	c.mu.Unlock()

	if previous != nil {
		c.log.Warn("Received a second greeting, replacing the first",
			zap.Int("previousSocket", previous.Socket),
			zap.Int("socket", greeting.Socket))
	}

	c.emit(GreetingReceived{Greeting: greeting})
}

func (c *Conn) emit(e Event) {
	if c.opts.Handler != nil {
		c.opts.Handler.HandleEvent(e)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
