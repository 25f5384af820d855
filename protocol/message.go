package protocol

// Message is a decoded server line.
type Message interface {
	GetCommand() Command
}

// Reply answers the oldest request that expects one.
type Reply struct {
	Code int
	Text string
}

// OK reports whether the reply carries the success code.
func (r *Reply) OK() bool {
	return r.Code == ReplyOK
}

func (r *Reply) GetCommand() Command {
	return REP
}

type Ping struct {
	Timestamp int64
}

func (p *Ping) GetCommand() Command {
	return PING
}

// Greeting is sent once by the server right after the connection is made.
type Greeting struct {
	Socket    int
	Hash      string
	IP        string
	Port      int
	Timestamp int64
}

func (g *Greeting) GetCommand() Command {
	return SALUT
}

// UserHeader describes the connection a user_cmd line originates from.
type UserHeader struct {
	Socket          int
	Kind            string
	TrustLevelLow   int
	TrustLevelHigh  int
	Login           string
	IP              string
	WorkstationType string
	Location        string
	Group           string
}

type UserCommand struct {
	Header UserHeader
	Body   []string
}

func (u *UserCommand) GetCommand() Command {
	return USERCMD
}

// Unknown is any line whose leading token we do not handle. It is never an
// error, servers are free to add commands.
type Unknown struct {
	Tokens []string
}

func (u *Unknown) GetCommand() Command {
	if len(u.Tokens) == 0 {
		return ""
	}

	return Command(u.Tokens[0])
}

var _ Message = (*Reply)(nil)
var _ Message = (*Ping)(nil)
var _ Message = (*Greeting)(nil)
var _ Message = (*UserCommand)(nil)
var _ Message = (*Unknown)(nil)
