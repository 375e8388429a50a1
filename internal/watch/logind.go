package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"lumen/internal/logging"
)

const (
	logindManagerInterface = "org.freedesktop.login1.Manager"
	logindSessionInterface = "org.freedesktop.login1.Session"
)

// Logind follows systemd-logind for suspend/resume and session lock changes.
type Logind struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	quit    chan struct{}
	running bool
}

// NewLogind creates a logind watcher.
func NewLogind(logger *slog.Logger) *Logind {
	return &Logind{logger: logging.NewComponentLogger(logger, "logind-watcher")}
}

func (l *Logind) Name() string { return "logind" }

// Start subscribes to logind signals on the system bus. An unreachable bus is
// logged and leaves the watcher stopped.
func (l *Logind) Start(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		logging.WarnWithContext(l.logger, "failed to connect to system bus; session and sleep tracking disabled", "logind_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure dbus and systemd-logind are running"),
			logging.String(logging.FieldImpact, "monitors are not rescanned after resume or unlock"),
		)
		return nil
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(logindManagerInterface), dbus.WithMatchMember("PrepareForSleep")},
		{dbus.WithMatchInterface(logindSessionInterface), dbus.WithMatchMember("Lock")},
		{dbus.WithMatchInterface(logindSessionInterface), dbus.WithMatchMember("Unlock")},
	}
	for _, opts := range matches {
		if err := conn.AddMatchSignalContext(ctx, opts...); err != nil {
			_ = conn.Close()
			logging.WarnWithContext(l.logger, "failed to subscribe to logind signals", "logind_match_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check dbus policy for the daemon user"),
				logging.String(logging.FieldImpact, "monitors are not rescanned after resume or unlock"),
			)
			return nil
		}
	}

	l.signals = make(chan *dbus.Signal, 16)
	conn.Signal(l.signals)
	l.conn = conn
	l.quit = make(chan struct{})
	l.running = true
	go l.loop(ctx, l.signals, l.quit, handler)

	l.logger.Info("logind watcher started", logging.String(logging.FieldEventType, "logind_watcher_started"))
	return nil
}

// Stop detaches from the system bus.
func (l *Logind) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	close(l.quit)
	l.quit = nil
	if l.conn != nil {
		l.conn.RemoveSignal(l.signals)
		_ = l.conn.Close()
		l.conn = nil
	}
	l.running = false
	l.logger.Info("logind watcher stopped", logging.String(logging.FieldEventType, "logind_watcher_stopped"))
}

// Running reports whether the watcher is subscribed.
func (l *Logind) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Logind) loop(ctx context.Context, signals <-chan *dbus.Signal, quit <-chan struct{}, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			out, matched := classifyDBusSignal(sig)
			if !matched {
				continue
			}
			l.logger.Debug("logind signal",
				logging.String("member", sig.Name),
				logging.String(logging.FieldSource, out.Source.String()),
				logging.Bool("locked", out.Locked),
			)
			if handler != nil {
				handler(out)
			}
		}
	}
}

// classifyDBusSignal maps logind signals onto watcher signals. Entering sleep
// is reported with a zero count because there is nothing to rescan until the
// system resumes.
func classifyDBusSignal(sig *dbus.Signal) (Signal, bool) {
	if sig == nil {
		return Signal{}, false
	}
	switch sig.Name {
	case logindManagerInterface + ".PrepareForSleep":
		if len(sig.Body) == 0 {
			return Signal{}, false
		}
		sleeping, ok := sig.Body[0].(bool)
		if !ok {
			return Signal{}, false
		}
		if sleeping {
			return Counted(Power, 0), true
		}
		return Notify(Power), true
	case logindSessionInterface + ".Lock":
		return Signal{Source: Session, Locked: true}, true
	case logindSessionInterface + ".Unlock":
		return Signal{Source: Session, Locked: false}, true
	}
	return Signal{}, false
}
