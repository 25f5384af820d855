package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedBody  = errors.New("User command body is malformed")
	ErrNotPeerCommand = errors.New("User command is not a peer command")
)

// rosterRowFields is the number of body tokens of a who row, "who" included.
const rosterRowFields = 13

// State is a presence state and the time it was entered.
type State struct {
	Name      string
	Timestamp int64
}

func (s State) String() string {
	return s.Name + ":" + strconv.FormatInt(s.Timestamp, 10)
}

// RosterRow is one line of a who listing.
type RosterRow struct {
	Socket              int
	Login               string
	IP                  string
	LoginTimestamp      int64
	LastChangeTimestamp int64
	TrustLevelLow       int
	TrustLevelHigh      int
	WorkstationType     string
	Location            string
	Group               string
	State               State
	Resource            string
}

// PeerCommand is a command another user sent us through msg_user.
type PeerCommand struct {
	Cmd   string
	Data  string
	Dests LoginList
}

type FileOffer struct {
	Name        string
	Size        int64
	Description string
	Method      string
}

type FileStart struct {
	Name string
	IP   string
	Port int
}

// IsWhoTerminator reports whether a who body ends a listing.
func IsWhoTerminator(body []string, terminator string) bool {
	return len(body) > 1 && body[0] == CmdWho && body[1] == terminator
}

// DecodeRosterRow decodes the body of a who row, body[0] being "who".
func DecodeRosterRow(body []string) (RosterRow, error) {
	var row RosterRow

	if len(body) < rosterRowFields {
		return row, fmt.Errorf("who row has %d fields: %w", len(body), ErrMalformedBody)
	}

	var err error
	if row.Socket, err = strconv.Atoi(body[1]); err != nil {
		return row, err
	}

	if row.LoginTimestamp, err = parseInt64(body[4]); err != nil {
		return row, err
	}

	if row.LastChangeTimestamp, err = parseInt64(body[5]); err != nil {
		return row, err
	}

	if row.TrustLevelLow, err = strconv.Atoi(body[6]); err != nil {
		return row, err
	}

	if row.TrustLevelHigh, err = strconv.Atoi(body[7]); err != nil {
		return row, err
	}

	if row.State, err = DecodeState(body[11]); err != nil {
		return row, err
	}

	row.Login = body[2]
	row.IP = body[3]
	row.WorkstationType = body[8]
	row.Location = Unescape(body[9])
	row.Group = body[10]
	row.Resource = Unescape(body[12])

	return row, nil
}

// DecodeState decodes `name:timestamp`. The timestamp is optional.
func DecodeState(field string) (State, error) {
	parts := strings.SplitN(field, ":", 2)

	state := State{Name: parts[0]}
	if len(parts) == 1 || parts[1] == "" {
		return state, nil
	}

	ts, err := parseInt64(parts[1])
	if err != nil {
		return state, err
	}

	state.Timestamp = ts

	return state, nil
}

// DecodePeerCommand decodes `<cmd> <payload> dst=<loginlist>`.
func DecodePeerCommand(body []string) (PeerCommand, error) {
	if len(body) != 3 || !strings.HasPrefix(body[2], destPrefix) {
		return PeerCommand{}, ErrNotPeerCommand
	}

	return PeerCommand{
		Cmd:   body[0],
		Data:  Unescape(body[1]),
		Dests: ParseLoginList(strings.TrimPrefix(body[2], destPrefix)),
	}, nil
}

// DecodeFileOffer decodes the payload of a file_ask command.
func DecodeFileOffer(data string) (FileOffer, error) {
	fields := strings.Split(data, " ")
	if len(fields) != 4 {
		return FileOffer{}, fmt.Errorf("file offer has %d fields: %w", len(fields), ErrMalformedBody)
	}

	size, err := parseInt64(fields[1])
	if err != nil {
		return FileOffer{}, err
	}

	return FileOffer{
		Name:        Unescape(fields[0]),
		Size:        size,
		Description: Unescape(fields[2]),
		Method:      fields[3],
	}, nil
}

// DecodeFileStart decodes the payload of a file_start command.
func DecodeFileStart(data string) (FileStart, error) {
	fields := strings.Split(data, " ")
	if len(fields) != 3 {
		return FileStart{}, fmt.Errorf("file start has %d fields: %w", len(fields), ErrMalformedBody)
	}

	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return FileStart{}, err
	}

	return FileStart{
		Name: Unescape(fields[0]),
		IP:   fields[1],
		Port: port,
	}, nil
}
