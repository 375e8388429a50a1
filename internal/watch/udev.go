package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"lumen/internal/logging"
)

const udevSubsystems = "^(drm|backlight|power_supply|i2c-dev)$"

// Udev listens for kernel uevents about display connectors, backlight panels,
// DDC buses, and power supplies.
type Udev struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewUdev creates a udev watcher.
func NewUdev(logger *slog.Logger) *Udev {
	return &Udev{logger: logging.NewComponentLogger(logger, "udev-watcher")}
}

func (u *Udev) Name() string { return "udev" }

// Start connects to the kernel uevent socket. Failure to connect is logged and
// leaves the watcher stopped; the periodic check still catches changes.
func (u *Udev) Start(ctx context.Context, handler Handler) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		logging.WarnWithContext(u.logger, "failed to connect to netlink socket; hotplug detection disabled", "udev_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "monitor hotplug is only noticed by the periodic check"),
		)
		return nil
	}

	u.conn = conn
	u.quit = make(chan struct{})
	u.running = true
	go u.loop(ctx, conn, u.quit, handler)

	u.logger.Info("udev watcher started", logging.String(logging.FieldEventType, "udev_watcher_started"))
	return nil
}

// Stop closes the uevent socket.
func (u *Udev) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}
	close(u.quit)
	u.quit = nil
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	u.running = false
	u.logger.Info("udev watcher stopped", logging.String(logging.FieldEventType, "udev_watcher_stopped"))
}

// Running reports whether the watcher is connected.
func (u *Udev) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *Udev) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, handler Handler) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, udevMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			sig, ok := classifyUEvent(uevent)
			if !ok {
				continue
			}
			u.logger.Debug("uevent",
				logging.String("action", string(uevent.Action)),
				logging.String("subsystem", uevent.Env["SUBSYSTEM"]),
				logging.String(logging.FieldSource, sig.Source.String()),
			)
			if handler != nil {
				handler(sig)
			}
		case err := <-errs:
			logging.WarnWithContext(u.logger, "udev watcher error", "udev_watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug detection may miss events"),
			)
		}
	}
}

func udevMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": udevSubsystems},
	})
	return rules
}

// classifyUEvent maps a uevent onto a signal. A drm change that is not a
// hotplug (for example a mode set) yields a zero-count topology signal, as
// does a battery power_supply change for the power source.
func classifyUEvent(ev netlink.UEvent) (Signal, bool) {
	action := string(ev.Action)
	switch ev.Env["SUBSYSTEM"] {
	case "drm":
		switch action {
		case "add", "remove":
			return Notify(Topology), true
		case "change":
			if ev.Env["HOTPLUG"] == "1" {
				return Counted(Topology, 1), true
			}
			return Counted(Topology, 0), true
		}
	case "i2c-dev":
		if action == "add" || action == "remove" {
			return Notify(Topology), true
		}
	case "backlight":
		switch action {
		case "change":
			return Counted(Brightness, 1), true
		case "add", "remove":
			return Notify(Topology), true
		}
	case "power_supply":
		if action != "change" {
			break
		}
		// Only AC adapters report ONLINE; battery capacity ticks carry no
		// work for the policy.
		if _, ok := ev.Env["POWER_SUPPLY_ONLINE"]; ok {
			return Notify(Power), true
		}
		return Counted(Power, 0), true
	}
	return Signal{}, false
}
