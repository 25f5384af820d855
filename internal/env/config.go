package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Server is the host:port of the NetSoul server to connect to
	Server string `env:"NETSOUL_SERVER,default=ns-server.epita.fr:4242"`

	Login    string `env:"NETSOUL_LOGIN"`
	Password string `env:"NETSOUL_PASSWORD"`

	// Location and Resource are what other users see of this connection
	Location string `env:"NETSOUL_LOCATION"`
	Resource string `env:"NETSOUL_RESOURCE,default=netsoul-protocol"`

	// State is set once authenticated
	State string `env:"NETSOUL_STATE,default=actif"`

	AutoPing      bool   `env:"NETSOUL_AUTO_PING,default=true"`
	WhoTerminator string `env:"NETSOUL_WHO_TERMINATOR,default=rep"`

	// Users is the login:password table used by `serve`
	Users map[string]string `env:"NETSOUL_USERS"`

	DebugHTTP bool `env:"NETSOUL_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
