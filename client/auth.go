package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luma/netsoul/protocol"
)

var (
	ErrCannotRequestAuth = errors.New("Cannot request authentication")
	ErrAuthFailed        = errors.New("Authentication failed")
)

type AuthState int

const (
	AuthIdle AuthState = iota
	AuthAwaitingGreeting
	AuthGreetingReceived
	AuthRequestingChallenge
	AuthRequestingCredential
	AuthAuthenticated
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthAwaitingGreeting:
		return "awaiting_greeting"
	case AuthGreetingReceived:
		return "greeting_received"
	case AuthRequestingChallenge:
		return "requesting_challenge"
	case AuthRequestingCredential:
		return "requesting_credential"
	case AuthAuthenticated:
		return "authenticated"
	case AuthFailed:
		return "failed"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// AuthState returns where the authentication handshake stands.
func (c *Conn) AuthState() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.authState
}

// Authenticate runs the handshake and waits for its outcome, or for ctx.
func (c *Conn) Authenticate(ctx context.Context, login string, password string) error {
	_, err := c.AuthenticateAsync(login, password).Wait(ctx)
	return err
}

// AuthenticateAsync starts the handshake:
//
//  1. ask for the right to authenticate (auth_ag)
//  2. once granted, send the credential hash (ext_user_log)
//
// The credential line is never sent if the first step fails. Both steps
// rely on the server answering in order.
func (c *Conn) AuthenticateAsync(login string, password string) *Future[struct{}] {
	greeting, ok := c.Greeting()
	if !ok {
		return failedFuture[struct{}](ErrNoGreeting)
	}

	log := c.log.Named("auth").With(zap.String("login", login))
	hash := protocol.CredentialHash(&greeting, password)
	result := newFuture[struct{}]()

	fail := func(err error) {
		c.setAuthState(AuthFailed)
		log.Info("Authentication failed", zap.Error(err))
		result.reject(err)
	}

	c.setAuthState(AuthRequestingChallenge)

	c.SendAuthRequest().then(func(rep protocol.Reply, err error) {
		if err != nil {
			fail(err)
			return
		}

		if !rep.OK() {
			fail(fmt.Errorf("%w: %d %s", ErrCannotRequestAuth, rep.Code, rep.Text))
			return
		}

		c.setAuthState(AuthRequestingCredential)

		c.SendCredentials(login, hash).then(func(rep protocol.Reply, err error) {
			if err != nil {
				fail(err)
				return
			}

			if !rep.OK() {
				fail(fmt.Errorf("%w: %d %s", ErrAuthFailed, rep.Code, rep.Text))
				return
			}

			c.setAuthState(AuthAuthenticated)
			log.Info("Authenticated")
			result.resolve(struct{}{})
		})
	})

	return result
}

func (c *Conn) setAuthState(state AuthState) {
	c.mu.Lock()
	c.authState = state
	c.mu.Unlock()
}
