package transport_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/netsoul/client"
	"github.com/luma/netsoul/protocol"
	"github.com/luma/netsoul/storage"
	"github.com/luma/netsoul/transport"
)

type inbox struct {
	mu     sync.Mutex
	events []client.Event
}

func (i *inbox) HandleEvent(e client.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.events = append(i.events, e)
}

func (i *inbox) messages() []client.MessageReceived {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []client.MessageReceived
	for _, e := range i.events {
		if msg, ok := e.(client.MessageReceived); ok {
			out = append(out, msg)
		}
	}

	return out
}

func (i *inbox) states() []client.StateChanged {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []client.StateChanged
	for _, e := range i.events {
		if state, ok := e.(client.StateChanged); ok {
			out = append(out, state)
		}
	}

	return out
}

var _ = Describe("transport", func() {
	var (
		server *transport.Server
		store  *storage.InmemoryStore
	)

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		server = makeServer(store)
	})

	AfterEach(func() {
		Expect(server.Close()).To(Succeed())
		store.Close()
	})

	It("greets new connections", func() {
		conn, err := net.Dial("tcp", server.Addr().String())
		Expect(err).To(Succeed())
		defer conn.Close()

		line, err := bufio.NewReader(conn).ReadString('\n')
		Expect(err).To(Succeed())
		Expect(line).To(HavePrefix("salut 1 "))

		msg, err := protocol.ParseLine(strings.TrimSuffix(line, "\n"))
		Expect(err).To(Succeed())
		Expect(msg).To(BeAssignableToTypeOf(&protocol.Greeting{}))
	})

	It("answers unknown commands", func() {
		conn, err := net.Dial("tcp", server.Addr().String())
		Expect(err).To(Succeed())
		defer conn.Close()

		r := bufio.NewReader(conn)
		_, err = r.ReadString('\n')
		Expect(err).To(Succeed())

		_, err = conn.Write([]byte("dance\n"))
		Expect(err).To(Succeed())

		line, err := r.ReadString('\n')
		Expect(err).To(Succeed())
		Expect(line).To(Equal("rep 001 -- no such cmd\n"))
	})

	It("authenticates known users", func() {
		session := connect(server, "bob", nil)
		defer session.Close()

		Expect(session.AuthState()).To(Equal(client.AuthAuthenticated))

		Eventually(func() error {
			_, err := store.Get(context.Background(), storage.ConnectionKey("bob", 1))
			return err
		}).Should(Succeed())
	})

	It("refuses bad passwords", func() {
		session := dial(server, nil)
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := session.Authenticate(ctx, "bob", "wrong")
		Expect(errors.Is(err, client.ErrAuthFailed)).To(BeTrue())
	})

	It("answers who queries", func() {
		bob := connect(server, "bob", nil)
		defer bob.Close()

		alice := connect(server, "alice", nil)
		defer alice.Close()

		Expect(alice.SendState("away", time.Unix(5000, 0))).To(Succeed())

		Eventually(func() string {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			result, err := bob.QueryRoster(protocol.Names("alice", "bob")).Wait(ctx)
			if err != nil || len(result.Rows) != 2 {
				return ""
			}

			for _, row := range result.Rows {
				if row.Login == "alice" {
					return row.State.Name
				}
			}

			return ""
		}).Should(Equal("away"))
	})

	It("relays messages", func() {
		bobInbox := &inbox{}
		bob := connect(server, "bob", bobInbox)
		defer bob.Close()

		alice := connect(server, "alice", nil)
		defer alice.Close()

		Expect(alice.SendMessage("hello bob!", protocol.Names("bob"))).To(Succeed())

		Eventually(bobInbox.messages).Should(HaveLen(1))

		msg := bobInbox.messages()[0]
		Expect(msg.Sender.Login).To(Equal("alice"))
		Expect(msg.Text).To(Equal("hello bob!"))
		Expect(msg.Dests).To(Equal(protocol.Names("bob")))
	})

	It("tells watchers about state changes", func() {
		bobInbox := &inbox{}
		bob := connect(server, "bob", bobInbox)
		defer bob.Close()

		Expect(bob.SendWatch(protocol.Names("alice"))).To(Succeed())

		alice := connect(server, "alice", nil)
		defer alice.Close()

		Expect(alice.SendState("lock", time.Unix(6000, 0))).To(Succeed())

		Eventually(func() []protocol.State {
			var seen []protocol.State
			for _, change := range bobInbox.states() {
				if change.Sender.Login == "alice" {
					seen = append(seen, change.State)
				}
			}

			return seen
		}).Should(ContainElement(protocol.State{Name: "lock", Timestamp: 6000}))
	})

	It("ends sessions when the server goes away", func() {
		session := dial(server, nil)

		pending := session.QueryRoster(protocol.Names("bob"))

		Expect(server.Close()).To(Succeed())

		Eventually(session.Done()).Should(BeClosed())
		_, err := pending.Result()
		Expect(errors.Is(err, client.ErrConnectionClosed)).To(BeTrue())
		Expect(session.Close()).To(Succeed())
	})
})

func makeServer(store storage.Store) *transport.Server {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	server := transport.NewServer(transport.Options{
		Host:  "127.0.0.1",
		Port:  0,
		Trace: true,
		Users: map[string]string{
			"bob":   "bobpw",
			"alice": "alicepw",
		},
		Store: store,
		Log:   log,
	})

	Expect(server.Start(context.Background())).To(Succeed())

	return server
}

// dial connects a client and waits for the greeting.
func dial(server *transport.Server, handler client.EventHandler) *client.Session {
	opts := client.DefaultOptions()
	opts.Location = "test lab"
	opts.Handler = handler

	session, err := client.Dial(context.Background(), server.Addr().String(), opts)
	Expect(err).To(Succeed())

	Eventually(func() bool {
		_, ok := session.Info()
		return ok
	}).Should(BeTrue())

	return session
}

// connect dials and authenticates as login, whose password is login + "pw".
func connect(server *transport.Server, login string, handler client.EventHandler) *client.Session {
	session := dial(server, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	Expect(session.Authenticate(ctx, login, login+"pw")).To(Succeed())

	return session
}
