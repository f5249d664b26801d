package daemonrun

import (
	"time"

	"flowpool/internal/config"
	"flowpool/internal/services"
	"flowpool/internal/supervisor"
)

// stopMargin covers the pass in progress when SIGTERM arrives, the drain poll
// step, and closing the queue and metrics endpoint.
const stopMargin = 10 * time.Second

// StopTimeout is how long a controller waits for a daemon running cfg to
// exit after SIGTERM. It spans the drain window, one reap wait per pool slot,
// and the TERM and KILL grace periods of both dependent services.
func StopTimeout(cfg *config.Config) time.Duration {
	drain := cfg.ShutdownWait()
	kill := time.Duration(cfg.Pool.MaxSize) * supervisor.DefaultKillWait
	serviceStop := 2 * 2 * services.DefaultStopGrace
	return drain + kill + serviceStop + stopMargin
}
