package client

import (
	"go.uber.org/zap"

	"github.com/luma/netsoul/protocol"
)

type peerHandler func(c *Conn, sender protocol.UserHeader, cmd protocol.PeerCommand)

// peerHandlers routes the peer commands we know about to their event.
var peerHandlers = map[string]peerHandler{
	protocol.CmdMsg:             (*Conn).onMessage,
	protocol.CmdTyping:          (*Conn).onTyping,
	protocol.CmdCancelledTyping: (*Conn).onCancelledTyping,
	protocol.CmdFileAsk:         (*Conn).onFileAsk,
	protocol.CmdFileStart:       (*Conn).onFileStart,
}

func (c *Conn) dispatch(cmd *protocol.UserCommand) {
	sender, body := cmd.Header, cmd.Body

	c.emit(UserCommandReceived{Sender: sender, Body: body})

	if len(body) == 0 {
		c.emit(UnrecognizedUserCommand{Sender: sender, Body: body})
		return
	}

	switch body[0] {
	case protocol.CmdLogin:
		c.emit(UserLogin{Sender: sender})

	case protocol.CmdLogout:
		c.emit(UserLogout{Sender: sender})

	case protocol.CmdWho:
		c.onWho(sender, body)

	case protocol.CmdState:
		if len(body) < 2 {
			c.emit(UnrecognizedUserCommand{Sender: sender, Body: body})
			return
		}

		state, err := protocol.DecodeState(body[1])
		if err != nil {
			c.emit(UnrecognizedUserCommand{Sender: sender, Body: body, Err: err})
			return
		}

		c.emit(StateChanged{Sender: sender, State: state})

	default:
		peerCmd, err := protocol.DecodePeerCommand(body)
		if err != nil {
			c.emit(UnrecognizedUserCommand{Sender: sender, Body: body, Err: err})
			return
		}

		c.onPeerCommand(sender, peerCmd)
	}
}

func (c *Conn) onWho(sender protocol.UserHeader, body []string) {
	if protocol.IsWhoTerminator(body, c.opts.WhoTerminator) {
		c.finishRosterQuery(sender)
		return
	}

	row, err := protocol.DecodeRosterRow(body)
	if err != nil {
		c.log.Debug("Malformed who row", zap.Strings("body", body), zap.Error(err))
		c.emit(UnrecognizedUserCommand{Sender: sender, Body: body, Err: err})
		return
	}

	c.rosterRows = append(c.rosterRows, row)
	c.emit(RosterRowReceived{Sender: sender, Row: row})
}

// finishRosterQuery hands every row buffered since the previous terminator to
// the oldest pending query.
func (c *Conn) finishRosterQuery(sender protocol.UserHeader) {
	rows := c.rosterRows
	c.rosterRows = nil

	if rows == nil {
		rows = []protocol.RosterRow{}
	}

	c.mu.Lock()
	query, ok := c.rosters.pop()
	c.mu.Unlock()

	if !ok {
		c.log.Debug("Unexpected end of who listing", zap.Int("rows", len(rows)))
		c.emit(UnexpectedRosterEnd{Rows: rows})
		return
	}

	result := RosterResult{Logins: query.logins, Rows: rows}
	c.emit(RosterQueryComplete{Sender: sender, Result: result})
	query.future.resolve(result)
}

func (c *Conn) onPeerCommand(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	c.emit(PeerCommand{Sender: sender, Command: cmd})

	if handler, ok := peerHandlers[cmd.Cmd]; ok {
		handler(c, sender, cmd)
		return
	}

	c.emit(CustomCommand{Sender: sender, Command: cmd})
}

func (c *Conn) onMessage(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	c.emit(MessageReceived{Sender: sender, Text: cmd.Data, Dests: cmd.Dests})
}

func (c *Conn) onTyping(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	c.emit(TypingStarted{Sender: sender, Dests: cmd.Dests})
}

func (c *Conn) onCancelledTyping(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	c.emit(TypingCancelled{Sender: sender, Dests: cmd.Dests})
}

// onFileAsk drops offers that do not have exactly the expected fields.
func (c *Conn) onFileAsk(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	offer, err := protocol.DecodeFileOffer(cmd.Data)
	if err != nil {
		c.log.Debug("Dropping malformed file offer", zap.String("data", cmd.Data), zap.Error(err))
		return
	}

	c.emit(FileOffered{Sender: sender, Offer: offer, Dests: cmd.Dests})
}

func (c *Conn) onFileStart(sender protocol.UserHeader, cmd protocol.PeerCommand) {
	start, err := protocol.DecodeFileStart(cmd.Data)
	if err != nil {
		c.log.Debug("Dropping malformed file start", zap.String("data", cmd.Data), zap.Error(err))
		return
	}

	c.emit(FileStarted{Sender: sender, Start: start, Dests: cmd.Dests})
}
