package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedLine   = errors.New("Line is malformed")
	ErrLineTooShort    = errors.New("Line is malformed, it appears to be too short")
	ErrMalformedHeader = errors.New("User command header is malformed")
)

// ParseLine decodes a single line, without its delimiter.
//
// An empty line decodes to a nil Message. Lines with an unknown leading token
// decode to *Unknown. Lines with a known leading token but invalid fields
// return an error wrapping ErrMalformedLine.
func ParseLine(line string) (Message, error) {
	if line == "" {
		return nil, nil
	}

	tokens := strings.Split(line, " ")

	switch Command(tokens[0]) {
	case REP:
		return parseReply(line, tokens)

	case PING:
		if len(tokens) < 2 {
			return nil, malformed(line, ErrLineTooShort)
		}

		ts, err := parseInt64(tokens[1])
		if err != nil {
			return nil, malformed(line, err)
		}

		return &Ping{Timestamp: ts}, nil

	case SALUT:
		return parseGreeting(line, tokens)

	case USERCMD:
		if len(tokens) < 2 {
			return nil, malformed(line, ErrLineTooShort)
		}

		header, err := ParseUserHeader(tokens[1])
		if err != nil {
			return nil, malformed(line, err)
		}

		var body []string
		if len(tokens) > 3 {
			body = tokens[3:]
		}

		return &UserCommand{Header: header, Body: body}, nil

	default:
		return &Unknown{Tokens: tokens}, nil
	}
}

func parseReply(line string, tokens []string) (*Reply, error) {
	if len(tokens) < 2 {
		return nil, malformed(line, ErrLineTooShort)
	}

	code, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, malformed(line, err)
	}

	return &Reply{Code: code, Text: strings.Join(tokens[2:], " ")}, nil
}

func parseGreeting(line string, tokens []string) (*Greeting, error) {
	if len(tokens) < 6 {
		return nil, malformed(line, ErrLineTooShort)
	}

	socket, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, malformed(line, err)
	}

	port, err := strconv.Atoi(tokens[4])
	if err != nil {
		return nil, malformed(line, err)
	}

	ts, err := parseInt64(tokens[5])
	if err != nil {
		return nil, malformed(line, err)
	}

	return &Greeting{
		Socket:    socket,
		Hash:      tokens[2],
		IP:        tokens[3],
		Port:      port,
		Timestamp: ts,
	}, nil
}

// ParseUserHeader decodes the sender field of a user_cmd line.
//
// Servers send `socket:kind:low/high:login@ip:workstation:location:group`, the
// shorter form without the kind field is accepted as well.
func ParseUserHeader(field string) (UserHeader, error) {
	parts := strings.Split(field, ":")

	var header UserHeader

	switch len(parts) {
	case 7:
		header.Kind = parts[1]
		parts = append(parts[:1], parts[2:]...)
	case 6:
	default:
		return header, fmt.Errorf("expected 6 or 7 fields, got %d: %w", len(parts), ErrMalformedHeader)
	}

	socket, err := strconv.Atoi(parts[0])
	if err != nil {
		return header, err
	}

	low, high, err := parseTrust(parts[1])
	if err != nil {
		return header, err
	}

	login, ip := parts[2], ""
	if at := strings.LastIndexByte(parts[2], '@'); at >= 0 {
		login, ip = parts[2][:at], parts[2][at+1:]
	}

	header.Socket = socket
	header.TrustLevelLow = low
	header.TrustLevelHigh = high
	header.Login = login
	header.IP = ip
	header.WorkstationType = parts[3]
	header.Location = Unescape(parts[4])
	header.Group = parts[5]

	return header, nil
}

func parseTrust(field string) (low int, high int, err error) {
	levels := strings.SplitN(field, "/", 2)
	if len(levels) != 2 {
		return 0, 0, fmt.Errorf("trust levels '%s': %w", field, ErrMalformedHeader)
	}

	if low, err = strconv.Atoi(levels[0]); err != nil {
		return 0, 0, err
	}

	if high, err = strconv.Atoi(levels[1]); err != nil {
		return 0, 0, err
	}

	return low, high, nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func malformed(line string, err error) error {
	return fmt.Errorf("Failed to parse '%s': %w: %w", line, ErrMalformedLine, err)
}
