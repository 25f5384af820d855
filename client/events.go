package client

import "github.com/luma/netsoul/protocol"

// Event is something the engine observed or did. The set of events is closed,
// switch on the concrete type.
type Event interface {
	event()
}

// EventHandler receives events on the goroutine that fed the engine.
type EventHandler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to an EventHandler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// MultiHandler fans events out to several handlers, in order.
type MultiHandler []EventHandler

func (m MultiHandler) HandleEvent(e Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

type LineReceived struct {
	Line string
}

type LineSent struct {
	Line string
}

// UnrecognizedLine is a line we could not make sense of. Err is nil when the
// leading token is simply unknown.
type UnrecognizedLine struct {
	Tokens []string
	Err    error
}

type GreetingReceived struct {
	Greeting protocol.Greeting
}

type ReplyReceived struct {
	Reply protocol.Reply
}

// UnexpectedReply is a reply that arrived while nothing was waiting for one.
type UnexpectedReply struct {
	Reply protocol.Reply
}

type PingReceived struct {
	Timestamp int64
}

type UserCommandReceived struct {
	Sender protocol.UserHeader
	Body   []string
}

type UnrecognizedUserCommand struct {
	Sender protocol.UserHeader
	Body   []string
	Err    error
}

type UserLogin struct {
	Sender protocol.UserHeader
}

type UserLogout struct {
	Sender protocol.UserHeader
}

type RosterRowReceived struct {
	Sender protocol.UserHeader
	Row    protocol.RosterRow
}

type RosterQueryComplete struct {
	Sender protocol.UserHeader
	Result RosterResult
}

// UnexpectedRosterEnd carries the rows of a listing nobody asked for.
type UnexpectedRosterEnd struct {
	Rows []protocol.RosterRow
}

type StateChanged struct {
	Sender protocol.UserHeader
	State  protocol.State
}

// PeerCommand is emitted for every well formed msg_user command, before the
// more specific event.
type PeerCommand struct {
	Sender  protocol.UserHeader
	Command protocol.PeerCommand
}

// CustomCommand is a peer command with no specific event.
type CustomCommand struct {
	Sender  protocol.UserHeader
	Command protocol.PeerCommand
}

type MessageReceived struct {
	Sender protocol.UserHeader
	Text   string
	Dests  protocol.LoginList
}

type TypingStarted struct {
	Sender protocol.UserHeader
	Dests  protocol.LoginList
}

type TypingCancelled struct {
	Sender protocol.UserHeader
	Dests  protocol.LoginList
}

type FileOffered struct {
	Sender protocol.UserHeader
	Offer  protocol.FileOffer
	Dests  protocol.LoginList
}

type FileStarted struct {
	Sender protocol.UserHeader
	Start  protocol.FileStart
	Dests  protocol.LoginList
}

// SessionEnded is the last event of a connection. Err is nil on a clean close.
type SessionEnded struct {
	Err error
}

func (LineReceived) event()            {}
func (LineSent) event()                {}
func (UnrecognizedLine) event()        {}
func (GreetingReceived) event()        {}
func (ReplyReceived) event()           {}
func (UnexpectedReply) event()         {}
func (PingReceived) event()            {}
func (UserCommandReceived) event()     {}
func (UnrecognizedUserCommand) event() {}
func (UserLogin) event()               {}
func (UserLogout) event()              {}
func (RosterRowReceived) event()       {}
func (RosterQueryComplete) event()     {}
func (UnexpectedRosterEnd) event()     {}
func (StateChanged) event()            {}
func (PeerCommand) event()             {}
func (CustomCommand) event()           {}
func (MessageReceived) event()         {}
func (TypingStarted) event()           {}
func (TypingCancelled) event()         {}
func (FileOffered) event()             {}
func (FileStarted) event()             {}
func (SessionEnded) event()            {}
