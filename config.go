package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	fullCountdown  int
	lobbyCountdown int
	logFile        string
	logMaxSize     int
	maxRooms       int
	port           int
	prefix         string
	profile        bool
	resetDelay     int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// bot-only settings
	serverURL string
	nickname  string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxRooms < 1 {
		return fmt.Errorf("invalid max-rooms (must be positive): %d", c.maxRooms)
	}
	if c.lobbyCountdown < 1 || c.fullCountdown < 1 || c.resetDelay < 1 {
		return errors.New("countdown and reset delays must be positive")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BOMBERDOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "bomberdom",
		Short:         "A real-time multiplayer bomberman arena, served from a single binary.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BOMBERDOM_BIND)")
	fs.IntVar(&cfg.fullCountdown, "full-countdown", FullRoomCountdownSeconds, "seconds until start once a room fills (env: BOMBERDOM_FULL_COUNTDOWN)")
	fs.IntVar(&cfg.lobbyCountdown, "lobby-countdown", LobbyCountdownSeconds, "seconds until start once two players are seated (env: BOMBERDOM_LOBBY_COUNTDOWN)")
	fs.StringVar(&cfg.logFile, "log-file", "", "write logs to this file, with rotation (env: BOMBERDOM_LOG_FILE)")
	fs.IntVar(&cfg.logMaxSize, "log-max-size", 100, "maximum log file size in MB before rotation (env: BOMBERDOM_LOG_MAX_SIZE)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", MaxRooms, "maximum number of concurrent rooms (env: BOMBERDOM_MAX_ROOMS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BOMBERDOM_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BOMBERDOM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BOMBERDOM_PROFILE)")
	fs.IntVar(&cfg.resetDelay, "reset-delay", ResetDelaySeconds, "seconds a finished room shows the leaderboard before resetting (env: BOMBERDOM_RESET_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BOMBERDOM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BOMBERDOM_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BOMBERDOM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BOMBERDOM_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("bomberdom v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	cmd.AddCommand(newBotCmd(cfg))

	return cmd
}
