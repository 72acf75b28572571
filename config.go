package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MikeDev101/coopstack/server/pkg/constants"
)

type Config struct {
	bind           string
	port           int
	allowedOrigins []string
	gracePeriod    time.Duration
	maxPlayers     int
	publicURL      string

	redisAddress  string
	redisPassword string
	sessionTTL    time.Duration
	statsdAddress string

	relay         bool
	relayTURNOnly bool
	iceServers    []string

	logLevel  string
	logPretty bool

	tlsCert string
	tlsKey  string
	version bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return eris.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return eris.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gracePeriod <= 0 {
		return eris.Errorf("invalid grace period (must be positive): %s", c.gracePeriod)
	}
	if c.maxPlayers < 1 || c.maxPlayers > len(constants.Palette) {
		return eris.Errorf("invalid max players (must be between 1-%d inclusive): %d", len(constants.Palette), c.maxPlayers)
	}
	if c.sessionTTL < 0 {
		return eris.Errorf("invalid session ttl: %s", c.sessionTTL)
	}
	if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
		return eris.Wrapf(err, "invalid log level %q", c.logLevel)
	}
	return nil
}

func (c *Config) address() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("COOPSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "coopstack",
		Short:         "Relay server for cooperative falling-block games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       constants.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: COOPSTACK_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 3000, "port to listen on (env: COOPSTACK_PORT)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"*"}, "origin host patterns allowed to connect (env: COOPSTACK_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", constants.DefaultGracePeriod, "time a disconnected player keeps their seat (env: COOPSTACK_GRACE_PERIOD)")
	fs.IntVar(&cfg.maxPlayers, "max-players", constants.DefaultMaxPlayers, "seats per room (env: COOPSTACK_MAX_PLAYERS)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base url used in room join links (env: COOPSTACK_PUBLIC_URL)")
	fs.StringVar(&cfg.redisAddress, "redis-address", "", "redis address for session records, disabled when empty (env: COOPSTACK_REDIS_ADDRESS)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: COOPSTACK_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", 24*time.Hour, "how long session records are kept (env: COOPSTACK_SESSION_TTL)")
	fs.StringVar(&cfg.statsdAddress, "statsd-address", "", "statsd address for metrics, disabled when empty (env: COOPSTACK_STATSD_ADDRESS)")
	fs.BoolVar(&cfg.relay, "relay", false, "accept webrtc data channels for game traffic (env: COOPSTACK_RELAY)")
	fs.BoolVar(&cfg.relayTURNOnly, "relay-turn-only", false, "only use TURN candidates for the relay (env: COOPSTACK_RELAY_TURN_ONLY)")
	fs.StringSliceVar(&cfg.iceServers, "ice-servers", nil, "ice servers as url[,url]|username|credential (env: COOPSTACK_ICE_SERVERS)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "minimum log level (env: COOPSTACK_LOG_LEVEL)")
	fs.BoolVar(&cfg.logPretty, "log-pretty", false, "human readable log output (env: COOPSTACK_LOG_PRETTY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: COOPSTACK_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: COOPSTACK_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: COOPSTACK_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("coopstack v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
