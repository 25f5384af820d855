package protocol

import (
	"strconv"
	"strings"
)

// Login identifies a recipient. It is either a user name or a numeric
// socket id.
type Login struct {
	Name string
	ID   int
	IsID bool
}

// Name returns a login for a user name.
func Name(name string) Login {
	return Login{Name: name}
}

// ID returns a login for a numeric socket id.
func ID(id int) Login {
	return Login{ID: id, IsID: true}
}

// Names builds a LoginList out of user names.
func Names(names ...string) LoginList {
	list := make(LoginList, 0, len(names))
	for _, name := range names {
		list = append(list, Name(name))
	}

	return list
}

func (l Login) String() string {
	if l.IsID {
		return ":" + strconv.Itoa(l.ID)
	}

	return l.Name
}

// LoginList is an ordered set of logins.
type LoginList []Login

// Encode writes the list in its braced form, `{}` when empty.
func (ll LoginList) Encode() string {
	tokens := make([]string, 0, len(ll))
	for _, login := range ll {
		tokens = append(tokens, login.String())
	}

	return "{" + strings.Join(tokens, ",") + "}"
}

// Strings returns the textual form of each login.
func (ll LoginList) Strings() []string {
	out := make([]string, 0, len(ll))
	for _, login := range ll {
		out = append(out, login.String())
	}

	return out
}

// EncodeLogins writes a single login bare and anything else braced.
func EncodeLogins(logins ...Login) string {
	if len(logins) == 1 {
		return logins[0].String()
	}

	return LoginList(logins).Encode()
}

// ParseLoginList decodes either the braced or the bare form. It never fails,
// a token that looks like an id but isn't numeric is kept as a name.
func ParseLoginList(text string) LoginList {
	tokens := []string{text}
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") && len(text) >= 2 {
		inner := text[1 : len(text)-1]
		if inner == "" {
			return LoginList{}
		}

		tokens = strings.Split(inner, ",")
	}

	list := make(LoginList, 0, len(tokens))
	for _, token := range tokens {
		list = append(list, parseLogin(token))
	}

	return list
}

func parseLogin(token string) Login {
	if strings.HasPrefix(token, ":") {
		if id, err := strconv.Atoi(token[1:]); err == nil {
			return ID(id)
		}
	}

	return Name(token)
}
