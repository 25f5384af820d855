package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/luma/netsoul/client"
	"github.com/luma/netsoul/internal/env"
	"github.com/luma/netsoul/protocol"
	"github.com/luma/netsoul/storage"
)

const (
	greetingTimeout = 10 * time.Second
	requestTimeout  = 10 * time.Second
)

var (
	// The server to connect to
	server string

	// Who we log in as
	login string

	// Where we say we are
	location string

	// The state to set once authenticated
	state string

	// Logins to watch once authenticated
	watch []string

	// The address to serve the status API on, disabled when empty
	statusAddr string
)

func init() {
	flags := ConnectCmd.Flags()

	flags.StringVarP(&server, "server", "s", "", "The host:port of the NetSoul server (NETSOUL_SERVER)")
	flags.StringVarP(&login, "login", "l", "", "The login to authenticate as (NETSOUL_LOGIN)")
	flags.StringVar(&location, "location", "", "The location other users see (NETSOUL_LOCATION)")
	flags.StringVar(&state, "state", "", "The state to set once authenticated (NETSOUL_STATE)")
	flags.StringSliceVarP(&watch, "watch", "w", nil, "Logins to watch and query once authenticated")
	flags.StringVar(&statusAddr, "http", "", "Serve the status API on this address, e.g. 127.0.0.1:7362")
}

var ConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a NetSoul server",
	Long: `Connect to a NetSoul server, authenticate and stay online

The password is read from NETSOUL_PASSWORD, or prompted for.

Usage
	netsoul connect --login bob --watch alice,carol --http 127.0.0.1:7362

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		log, err := env.MakeLogger(debug)
		if err != nil {
			return err
		}

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		overrideConfig(cmd, conf)

		if err := promptCredentials(cmd, conf); err != nil {
			return err
		}

		store := storage.NewInmemoryStore()
		defer store.Close()

		greeted := make(chan struct{})
		var greetedOnce sync.Once

		opts := client.DefaultOptions()
		opts.Resource = conf.Resource
		opts.AutoPing = conf.AutoPing
		opts.WhoTerminator = conf.WhoTerminator
		opts.Log = log.Named("client")
		if conf.Location != "" {
			opts.Location = conf.Location
		}

		opts.Handler = client.MultiHandler{
			storage.NewPresenceTracker(store, log.Named("presence")),
			&eventPrinter{out: cmd.OutOrStdout(), log: log.Named("events")},
			client.HandlerFunc(func(e client.Event) {
				if _, ok := e.(client.GreetingReceived); ok {
					greetedOnce.Do(func() { close(greeted) })
				}
			}),
		}

		session, err := client.Dial(ctx, conf.Server, opts)
		if err != nil {
			return fmt.Errorf("Failed to connect to %s: %w", conf.Server, err)
		}

		log.Info("Connected", zap.String("server", conf.Server))

		if err := waitForGreeting(ctx, session, greeted); err != nil {
			session.Close()
			return err
		}

		authCtx, cancelAuth := context.WithTimeout(ctx, requestTimeout)
		err = session.Authenticate(authCtx, conf.Login, conf.Password)
		cancelAuth()
		if err != nil {
			session.Quit()
			return err
		}

		log.Info("Authenticated", zap.String("login", conf.Login), zap.String("location", opts.Location))

		if err := session.SendState(conf.State, time.Time{}); err != nil {
			session.Close()
			return err
		}

		if len(watch) > 0 {
			if err := session.SendWatch(protocol.Names(watch...)); err != nil {
				session.Close()
				return err
			}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer cancel()

			select {
			case <-session.Done():
				return session.Err()

			case <-gctx.Done():
				// Restore default behavior on the interrupt signal
				signalStop()
				log.Info("Disconnecting")
				return session.Quit()
			}
		})

		g.Go(func() error {
			logUpdates(gctx, store.ListenToUpdates(), log.Named("presence"))
			return nil
		})

		if len(watch) > 0 {
			logins := protocol.Names(watch...)

			g.Go(func() error {
				queryCtx, cancelQuery := context.WithTimeout(gctx, requestTimeout)
				defer cancelQuery()

				result, err := session.QueryRoster(logins).Wait(queryCtx)
				if err != nil {
					log.Warn("Who query failed", zap.Strings("logins", watch), zap.Error(err))
					return nil
				}

				log.Info("Watching", zap.Strings("logins", watch), zap.Int("connections", len(result.Rows)))
				return nil
			})
		}

		if statusAddr != "" {
			router := setupRouter(conf.DebugHTTP, log.Named("http"))
			presenceRoutes(router, store)
			sessionRoutes(router, session)

			serveHTTP(gctx, g, &http.Server{Addr: statusAddr, Handler: router}, log)
		}

		return g.Wait()
	},
}

func overrideConfig(cmd *cobra.Command, conf *env.Config) {
	flags := cmd.Flags()

	if flags.Changed("server") {
		conf.Server = server
	}

	if flags.Changed("login") {
		conf.Login = login
	}

	if flags.Changed("location") {
		conf.Location = location
	}

	if flags.Changed("state") {
		conf.State = state
	}
}

func promptCredentials(cmd *cobra.Command, conf *env.Config) error {
	in := bufio.NewReader(cmd.InOrStdin())

	if conf.Login == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Login: ")

		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		conf.Login = strings.TrimSpace(line)
	}

	if conf.Login == "" {
		return errors.New("A login is required")
	}

	if conf.Password != "" {
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		conf.Password = string(password)
		return nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	conf.Password = strings.TrimRight(line, "\r\n")
	return nil
}

func waitForGreeting(ctx context.Context, session *client.Session, greeted <-chan struct{}) error {
	timer := time.NewTimer(greetingTimeout)
	defer timer.Stop()

	select {
	case <-greeted:
		return nil

	case <-session.Done():
		return fmt.Errorf("%w: %v", client.ErrNoGreeting, session.Err())

	case <-timer.C:
		return fmt.Errorf("%w after %s", client.ErrNoGreeting, greetingTimeout)

	case <-ctx.Done():
		return ctx.Err()
	}
}

func logUpdates(ctx context.Context, updates <-chan *storage.Update, log *zap.Logger) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			if update.Value == nil {
				log.Debug("Presence removed", zap.String("key", update.Key))
			} else {
				log.Debug("Presence changed", zap.String("key", update.Key), zap.ByteString("value", update.Value))
			}

		case <-ctx.Done():
			return
		}
	}
}

// serveHTTP runs s in g until ctx is done.
func serveHTTP(ctx context.Context, g *errgroup.Group, s *http.Server, log *zap.Logger) {
	g.Go(func() error {
		log.Info("Listening", zap.String("httpAddr", s.Addr))

		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		// The server has 5 seconds to finish the requests it is currently
		// handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		return nil
	})
}

type messageRequest struct {
	To   []string `json:"to" binding:"required"`
	Text string   `json:"text" binding:"required"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

type whoRequest struct {
	Logins []string `json:"logins" binding:"required"`
}

// sessionRoutes lets HTTP clients act through session.
func sessionRoutes(r gin.IRoutes, session *client.Session) {
	r.GET("/info", func(c *gin.Context) {
		info, ok := session.Info()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": client.ErrNoGreeting.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"socket": info.Socket,
			"ip":     info.IP,
			"port":   info.Port,
			"auth":   session.AuthState().String(),
		})
	})

	r.POST("/who", func(c *gin.Context) {
		var req whoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		result, err := session.QueryRoster(protocol.Names(req.Logins...)).Wait(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"logins": result.Logins.Strings(), "rows": result.Rows})
	})

	r.POST("/message", func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := session.SendMessage(req.Text, protocol.Names(req.To...)); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.Status(http.StatusAccepted)
	})

	r.PUT("/state", func(c *gin.Context) {
		var req stateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := session.SendState(req.State, time.Time{}); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.Status(http.StatusAccepted)
	})
}

// eventPrinter shows what other users do, and logs the rest.
type eventPrinter struct {
	out io.Writer
	log *zap.Logger
}

func (p *eventPrinter) HandleEvent(e client.Event) {
	switch ev := e.(type) {
	case client.LineReceived:
		p.log.Debug("<-", zap.String("line", ev.Line))

	case client.LineSent:
		p.log.Debug("->", zap.String("line", ev.Line))

	case client.MessageReceived:
		fmt.Fprintf(p.out, "%s@%s: %s\n", ev.Sender.Login, ev.Sender.Location, ev.Text)

	case client.FileOffered:
		fmt.Fprintf(p.out, "%s offers %s (%d bytes): %s\n", ev.Sender.Login, ev.Offer.Name, ev.Offer.Size, ev.Offer.Description)

	case client.UserLogin:
		p.log.Info("User logged in", zap.String("login", ev.Sender.Login), zap.String("location", ev.Sender.Location))

	case client.UserLogout:
		p.log.Info("User logged out", zap.String("login", ev.Sender.Login), zap.String("location", ev.Sender.Location))

	case client.StateChanged:
		p.log.Info("User changed state", zap.String("login", ev.Sender.Login), zap.String("state", ev.State.Name))

	case client.UnrecognizedLine:
		p.log.Warn("Unrecognized line", zap.Strings("tokens", ev.Tokens), zap.Error(ev.Err))

	case client.UnexpectedReply:
		p.log.Warn("Unexpected reply", zap.Int("code", ev.Reply.Code), zap.String("text", ev.Reply.Text))

	case client.SessionEnded:
		if ev.Err != nil {
			p.log.Warn("Session ended", zap.Error(ev.Err))
		} else {
			p.log.Info("Session ended")
		}
	}
}

var _ client.EventHandler = (*eventPrinter)(nil)
