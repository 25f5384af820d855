package storage

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/luma/netsoul/client"
	"github.com/luma/netsoul/protocol"
)

// Connection is what we know of one connection of a user.
type Connection struct {
	Socket    int    `json:"socket"`
	IP        string `json:"ip"`
	Location  string `json:"location"`
	Group     string `json:"group"`
	State     string `json:"state,omitempty"`
	Since     int64  `json:"since,omitempty"`
	Resource  string `json:"resource,omitempty"`
	LoginTime int64  `json:"loginTime,omitempty"`
}

// PresenceTracker keeps a Store up to date with the presence of the users we
// hear about. The document looks like
//
//	{"bob": {"socket_42": {"socket": 42, "state": "actif", ...}}}
type PresenceTracker struct {
	store Store
	log   *zap.Logger
}

func NewPresenceTracker(store Store, log *zap.Logger) *PresenceTracker {
	if log == nil {
		log = zap.NewNop()
	}

	return &PresenceTracker{store: store, log: log}
}

// ConnectionKey is the store key of one connection of login.
func ConnectionKey(login string, socket int) string {
	return Path(login, "socket_"+strconv.Itoa(socket))
}

// LoginKey is the store key holding every connection of login.
func LoginKey(login string) string {
	return Path(login)
}

func (p *PresenceTracker) HandleEvent(e client.Event) {
	ctx := context.Background()

	var err error

	switch ev := e.(type) {
	case client.UserLogin:
		err = p.store.Set(ctx, ConnectionKey(ev.Sender.Login, ev.Sender.Socket), fromHeader(ev.Sender))

	case client.UserLogout:
		err = p.store.Delete(ctx, ConnectionKey(ev.Sender.Login, ev.Sender.Socket))

	case client.StateChanged:
		key := ConnectionKey(ev.Sender.Login, ev.Sender.Socket)
		if _, gerr := p.store.Get(ctx, key); gerr != nil {
			err = p.store.Set(ctx, key, fromHeader(ev.Sender))
			if err != nil {
				break
			}
		}

		if err = p.store.Set(ctx, key+".state", ev.State.Name); err != nil {
			break
		}

		err = p.store.Set(ctx, key+".since", ev.State.Timestamp)

	case client.RosterRowReceived:
		err = p.store.Set(ctx, ConnectionKey(ev.Row.Login, ev.Row.Socket), fromRow(ev.Row))
	}

	if err != nil {
		p.log.Warn("Failed to update presence", zap.Error(err))
	}
}

func fromHeader(h protocol.UserHeader) Connection {
	return Connection{
		Socket:   h.Socket,
		IP:       h.IP,
		Location: h.Location,
		Group:    h.Group,
	}
}

func fromRow(row protocol.RosterRow) Connection {
	return Connection{
		Socket:    row.Socket,
		IP:        row.IP,
		Location:  row.Location,
		Group:     row.Group,
		State:     row.State.Name,
		Since:     row.State.Timestamp,
		Resource:  row.Resource,
		LoginTime: row.LoginTimestamp,
	}
}

var _ client.EventHandler = (*PresenceTracker)(nil)
