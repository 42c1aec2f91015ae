// Package autoload initialises the global logger from LOG_ environment variables on import.
// It reads the process environment only; .env files are applied later through pkg/config.
package autoload

import (
	"github.com/kelseyhightower/envconfig"
	logx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.Init(conf)
}
