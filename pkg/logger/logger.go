package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true"`
	Service      string `split_words:"true" default:"kumak"`

	// Output defaults to stdout.
	Output io.Writer `ignored:"true"`
}

var DefaultConfig = Config{Service: "kumak"}

// level resolves the effective level. An explicit Level wins over Debug.
func (c Config) level() zerolog.Level {
	if raw := strings.TrimSpace(c.Level); raw != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			return lvl
		}
	}
	if c.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New builds a logger without touching the global one.
func New(conf Config) zerolog.Logger {
	out := conf.Output
	if out == nil {
		out = os.Stdout
	}
	if conf.PrettyFormat {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).Level(conf.level()).With().Timestamp()
	if svc := strings.TrimSpace(conf.Service); svc != "" {
		ctx = ctx.Str("service", svc)
	}
	return ctx.Caller().Stack().Logger()
}

// Init replaces the global zerolog logger.
func Init(opts ...Config) {
	conf := DefaultConfig
	if len(opts) > 0 {
		conf = opts[0]
	}
	log.Logger = New(conf)
}
