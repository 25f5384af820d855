package transport

import (
	"github.com/luma/netsoul/storage"
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free one
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	// Trace logs every line read and written. This is only useful in local debugging
	Trace bool

	// Users maps logins to their password. Anyone else fails to authenticate.
	Users map[string]string

	// Group is advertised for every user
	Group string

	// WhoTerminator ends who listings, protocol.DefaultWhoTerminator when empty
	WhoTerminator string

	// Store receives the presence of every authenticated connection
	Store storage.Store

	Log *zap.Logger
}
