package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mkendall/whosaidit/internal/app"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/services"
)

const releaseVersion = "0.1.0"

type config struct {
	bind         string
	port         int
	dbPath       string
	logLevel     string
	logHTTP      bool
	submitWindow time.Duration
	voteWindow   time.Duration
}

func (c *config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHOSAIDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whosaidit",
		Short:         "A party game server: answer prompts, guess who said it, vote for favorites.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOSAIDIT_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOSAIDIT_PORT)")
	fs.StringVar(&cfg.dbPath, "db", "whosaidit.db", "path to the sqlite database (env: WHOSAIDIT_DB)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error (env: WHOSAIDIT_LOG_LEVEL)")
	fs.BoolVar(&cfg.logHTTP, "log-http", false, "log every http request (env: WHOSAIDIT_LOG_HTTP)")
	fs.DurationVar(&cfg.submitWindow, "submit-window", 60*time.Second, "time players have to answer a prompt (env: WHOSAIDIT_SUBMIT_WINDOW)")
	fs.DurationVar(&cfg.voteWindow, "vote-window", 30*time.Second, "time players have to guess and vote (env: WHOSAIDIT_VOTE_WINDOW)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.SetVersionTemplate("whosaidit v{{.Version}}\n")
	return cmd
}

func run(cfg *config) error {
	log := logger.NewWithLevel(logger.ParseLevel(cfg.logLevel))
	if cfg.logHTTP {
		log.EnableHTTPLogging()
	}

	opts := services.DefaultOptions()
	opts.SubmitWindow = cfg.submitWindow
	opts.VoteWindow = cfg.voteWindow

	a, err := app.New(log, cfg.dbPath, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(fmt.Sprintf("%s:%d", cfg.bind, cfg.port))
}

func main() {
	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
