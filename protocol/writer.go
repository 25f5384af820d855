package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	Terminal = []byte("\n")

	AuthRequestLine = "auth_ag ext_user none none"
	ExitLine        = "exit"
)

// WriteLine writes line followed by the line terminator.
func WriteLine(w io.Writer, line string) error {
	b := make([]byte, 0, len(line)+len(Terminal))
	b = append(b, line...)
	b = append(b, Terminal...)

	_, err := w.Write(b)
	return err
}

func FormatPing(ts int64) string {
	return "ping " + strconv.FormatInt(ts, 10)
}

// FormatState formats a presence update. A zero at means now.
func FormatState(name string, at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}

	return "state " + State{Name: name, Timestamp: at.Unix()}.String()
}

func FormatWatch(logins LoginList) string {
	return "user_cmd watch_log_user " + EncodeLogins(logins...)
}

// FormatWho always uses the braced form so the reply can be matched to the
// logins we asked for.
func FormatWho(logins LoginList) string {
	return "user_cmd who " + logins.Encode()
}

// FormatCommand wraps a peer command in a msg_user envelope. data is percent
// encoded.
func FormatCommand(cmd string, data string, dests LoginList) string {
	return fmt.Sprintf("user_cmd msg_user %s %s %s", EncodeLogins(dests...), cmd, Escape(data))
}

func FormatFileAsk(name string, size int64, desc string) string {
	return strings.Join([]string{Escape(name), strconv.FormatInt(size, 10), Escape(desc), FileTransferPassive}, " ")
}

func FormatFileStart(name string, ip string, port int) string {
	return strings.Join([]string{Escape(name), ip, strconv.Itoa(port)}, " ")
}

func FormatCredentials(login string, hash string, location string, resource string) string {
	return strings.Join([]string{"ext_user_log", login, hash, Escape(location), Escape(resource)}, " ")
}

// CredentialHash proves knowledge of password without sending it.
func CredentialHash(greeting *Greeting, password string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s/%d%s", greeting.Hash, greeting.IP, greeting.Port, password)))
	return hex.EncodeToString(sum[:])
}
