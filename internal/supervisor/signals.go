package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"allsky/internal/logging"
)

// Signals the supervisor reacts to.
var handledSignals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGTERM,
	syscall.SIGINT,
	syscall.SIGALRM,
	syscall.SIGUSR1,
}

// WatchSignals translates process signals into loop requests until ctx is
// done. Handlers only set flags; the loop acts on them at its next
// checkpoint.
func (s *Supervisor) WatchSignals(ctx context.Context) {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, handledSignals...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				s.HandleSignal(sig)
			}
		}
	}()
}

// HandleSignal applies one signal.
func (s *Supervisor) HandleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGHUP:
		s.logger.Info("Caught HUP signal, reloading")
		s.RequestReload()
	case syscall.SIGTERM:
		s.logger.Info("Caught TERM signal, shutting down")
		s.RequestShutdown(true)
	case syscall.SIGINT:
		s.logger.Info("Caught INT signal, shutting down")
		s.RequestShutdown(false)
	case syscall.SIGALRM:
		fired := s.alarm.Fire()
		logging.WarnWithContext(s.logger, "Caught ALRM signal", "alarm_fired",
			logging.Int("interrupted", fired),
			logging.String(logging.FieldImpact, "in-flight timed operations were aborted"),
		)
	case syscall.SIGUSR1:
		s.logger.Info("Caught USR1 signal, reloading workers in place")
		s.RequestSoftReload()
	}
}
