// Package config loads the daemon's environment-driven settings — the
// scheme name it reports in its startup log, the TUN device it backs its
// IP channel with,
// and its log level — the way the teacher pack loads environment config,
// through github.com/sethvargo/go-envconfig (spec §1: the daemon's process
// is out of scope, but a complete daemon still needs to know what to bind
// to and how loud to log).
package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// Env holds every setting this daemon reads from its environment.
type Env struct {
	SchemeName string `env:"TCPD_SCHEME,default=tcp"`

	TUNDevice  string `env:"TCPD_TUN_DEVICE,default="`
	LocalIP    string `env:"TCPD_LOCAL_IP,default=10.0.0.1"`
	RemoteIP   string `env:"TCPD_REMOTE_IP,default=10.0.0.2"`
	SubnetMask string `env:"TCPD_SUBNET_MASK,default=255.255.255.0"`
	MTU        int    `env:"TCPD_MTU,default=1500"`

	LogLevel string `env:"TCPD_LOG_LEVEL,default=info"`
}

// Load reads Env from the process environment, applying defaults for
// anything unset.
func Load(ctx context.Context) (Env, error) {
	var env Env
	err := envconfig.Process(ctx, &env)
	return env, err
}
