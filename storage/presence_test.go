package storage_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/netsoul/client"
	"github.com/luma/netsoul/protocol"
	"github.com/luma/netsoul/storage"
)

var _ = Describe("storage / PresenceTracker", func() {
	var (
		ctx     = context.Background()
		store   *storage.InmemoryStore
		tracker *storage.PresenceTracker
	)

	bob := protocol.UserHeader{Socket: 42, Login: "bob", IP: "10.0.0.1", Location: "home", Group: "epita_2020"}

	connection := func(login string, socket int) storage.Connection {
		raw, err := store.Get(ctx, storage.ConnectionKey(login, socket))
		Expect(err).To(Succeed())

		var conn storage.Connection
		Expect(json.Unmarshal(raw, &conn)).To(Succeed())
		return conn
	}

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		tracker = storage.NewPresenceTracker(store, nil)
	})

	AfterEach(func() {
		store.Close()
	})

	It("records logins", func() {
		tracker.HandleEvent(client.UserLogin{Sender: bob})

		Expect(connection("bob", 42)).To(Equal(storage.Connection{
			Socket:   42,
			IP:       "10.0.0.1",
			Location: "home",
			Group:    "epita_2020",
		}))
	})

	It("forgets connections on logout", func() {
		tracker.HandleEvent(client.UserLogin{Sender: bob})
		tracker.HandleEvent(client.UserLogout{Sender: bob})

		_, err := store.Get(ctx, storage.ConnectionKey("bob", 42))
		Expect(err).To(MatchError(storage.ErrNotFound))
	})

	It("records state changes", func() {
		tracker.HandleEvent(client.StateChanged{Sender: bob, State: protocol.State{Name: "away", Timestamp: 99}})

		conn := connection("bob", 42)
		Expect(conn.State).To(Equal("away"))
		Expect(conn.Since).To(Equal(int64(99)))
		Expect(conn.Location).To(Equal("home"))
	})

	It("records roster rows", func() {
		tracker.HandleEvent(client.RosterRowReceived{Sender: bob, Row: protocol.RosterRow{
			Socket:         7,
			Login:          "alice",
			IP:             "10.0.0.2",
			LoginTimestamp: 10,
			Location:       "lab",
			Group:          "staff",
			State:          protocol.State{Name: "actif", Timestamp: 20},
			Resource:       "client",
		}})

		Expect(connection("alice", 7)).To(Equal(storage.Connection{
			Socket:    7,
			IP:        "10.0.0.2",
			Location:  "lab",
			Group:     "staff",
			State:     "actif",
			Since:     20,
			Resource:  "client",
			LoginTime: 10,
		}))
	})

	It("ignores other events", func() {
		tracker.HandleEvent(client.LineReceived{Line: "ping 1"})

		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})
})
