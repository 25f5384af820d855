package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/netsoul/internal/env"
	"github.com/luma/netsoul/storage"
	"github.com/luma/netsoul/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for NetSoul clients on
	port int

	// How often every client gets pinged, never when zero
	pingInterval time.Duration

	// The group advertised for every user
	group string
)

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 4242, "The port to listen client connections on")
	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.DurationVar(&pingInterval, "ping-interval", 10*time.Minute, "How often to ping connected clients")
	flags.StringVar(&group, "group", "netsoul", "The group advertised for every user")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a small NetSoul server",
	Long: `Run a small NetSoul server, mostly useful to test clients against

Users and their passwords come from NETSOUL_USERS (bob:secret,alice:pw).

Usage
	netsoul serve --port 4242

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		log, err := env.MakeLogger(debug)
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		if len(conf.Users) == 0 {
			log.Warn("No users configured, nobody will be able to authenticate")
		}

		store := storage.NewInmemoryStore()
		defer store.Close()

		ns := transport.NewServer(transport.Options{
			Host:          host,
			Port:          port,
			Reuseport:     true,
			Trace:         debug,
			Users:         conf.Users,
			Group:         group,
			WhoTerminator: conf.WhoTerminator,
			Store:         store,
			Log:           log.Named("transport"),
		})

		if err := ns.Start(ctx); err != nil {
			return err
		}

		router := setupRouter(conf.DebugHTTP, log.Named("http"))
		presenceRoutes(router, store)

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.String("addr", ns.Addr().String()),
			zap.String("httpPort", httpPort),
			zap.Int("users", len(conf.Users)))

		if pingInterval > 0 {
			go pingEvery(ctx, ns, pingInterval, log)
		}

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := ns.Close(); err != nil {
			log.Error("NetSoul server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func pingEvery(ctx context.Context, ns *transport.Server, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if err := ns.Ping(now.Unix()); err != nil {
				log.Warn("Failed to ping some clients", zap.Error(err))
			}

		case <-ctx.Done():
			return
		}
	}
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
