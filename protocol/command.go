package protocol

// Command is the leading token of a line sent by the server.
type Command string

const (
	REP     Command = "rep"
	PING    Command = "ping"
	SALUT   Command = "salut"
	USERCMD Command = "user_cmd"
)

// Commands carried in the body of a user_cmd line.
const (
	CmdLogin  = "login"
	CmdLogout = "logout"
	CmdWho    = "who"
	CmdState  = "state"

	CmdMsg             = "msg"
	CmdTyping          = "dotnetSoul_UserTyping"
	CmdCancelledTyping = "dotnetSoul_UserCancelledTyping"
	CmdFileAsk         = "file_ask"
	CmdFileStart       = "file_start"
)

const (
	// ReplyOK is the only reply code that means success.
	ReplyOK = 2

	// DefaultWhoTerminator is the token found in place of the socket id on the
	// row that ends a who listing.
	DefaultWhoTerminator = "rep"

	// FileTransferPassive is the only transfer method we announce.
	FileTransferPassive = "passive"

	destPrefix = "dst="
)
