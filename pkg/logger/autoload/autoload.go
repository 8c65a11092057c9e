// Package autoload initializes the global logger from LOG_* env vars on
// import.
package autoload

import (
	configx "github.com/tanpawarit/chative-support-team/pkg/config"
	logx "github.com/tanpawarit/chative-support-team/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
