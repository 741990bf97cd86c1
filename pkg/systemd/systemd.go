// Package systemd speaks the sd_notify protocol through go-systemd. Every call is a no-op
// returning false when the process is not started by systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends one sd_notify state string.
type Notifier interface {
	Notify(state string) (bool, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(state string) (bool, error)

func (f NotifierFunc) Notify(state string) (bool, error) { return f(state) }

// Daemon notifies the socket named by NOTIFY_SOCKET.
var Daemon Notifier = NotifierFunc(func(state string) (bool, error) {
	return daemon.SdNotify(false, state)
})

// Ready reports startup or a reload as finished. The helpers below send through n,
// or through Daemon when n is nil.
func Ready(n Notifier) (bool, error) { return send(n, daemon.SdNotifyReady) }

func Stopping(n Notifier) (bool, error) { return send(n, daemon.SdNotifyStopping) }

func Reloading(n Notifier) (bool, error) { return send(n, daemon.SdNotifyReloading) }

func Watchdog(n Notifier) (bool, error) { return send(n, daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func Status(n Notifier, msg string) (bool, error) { return send(n, "STATUS="+msg) }

func send(n Notifier, state string) (bool, error) {
	if n == nil {
		n = Daemon
	}
	return n.Notify(state)
}

// WatchdogInterval returns the unit's WatchdogSec, or 0 when the watchdog is off
// or meant for another process.
func WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
