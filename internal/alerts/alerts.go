// Package alerts surfaces background failures (embedder probes, reflection
// runs, reindex passes) to the user-facing frontend without flooding it.
// Repeats of the same alert are suppressed for a cooldown window.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/reverie/internal/logger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

// NotifyFunc delivers the alert text to whatever frontend is attached.
type NotifyFunc func(message string)

type Alerter struct {
	mu       sync.Mutex
	notify   NotifyFunc
	lastSent map[string]time.Time
	cooldown time.Duration
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	return &Alerter{
		notify:   notify,
		lastSent: make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// Alert sends one alert unless the same component/message pair fired within
// the cooldown window. Background loops call this on every failure and rely
// on the suppression here.
func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := component + ":" + message
	if last, ok := a.lastSent[key]; ok && time.Since(last) < a.cooldown {
		logger.Debug("alert suppressed", "component", component, "message", message)
		return
	}

	var text string
	switch severity {
	case SeverityCritical:
		text = fmt.Sprintf("[critical] %s: %s", component, message)
	case SeverityWarn:
		text = fmt.Sprintf("[warning] %s: %s", component, message)
	default:
		text = fmt.Sprintf("[info] %s: %s", component, message)
	}
	if err != nil {
		text += fmt.Sprintf(" (%v)", err)
	}

	if a.notify != nil {
		a.notify(text)
		a.lastSent[key] = time.Now()
		logger.Info("alert sent", "component", component, "severity", severity)
	}
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}

func (a *Alerter) Info(component, message string) {
	a.Alert(SeverityInfo, component, message, nil)
}
