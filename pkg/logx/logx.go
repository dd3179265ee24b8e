// Package logx provides structured, domain-filtered logging for the throttling engine.
package logx

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	name   string
	logger *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugConfig controls which domains emit Debug-level output.
// A throttling engine under heavy concurrent load can log thousands of
// admission decisions per second; domain filtering keeps that to what the
// operator actually asked for.
type debugConfig struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

var (
	cfg      = &debugConfig{}
	cfgMutex sync.RWMutex
)

func init() { //nolint:gochecknoinits // environment-driven debug init, same as teacher package
	initDebugFromEnv()
}

func initDebugFromEnv() {
	cfgMutex.Lock()
	defer cfgMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		cfg.enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		cfg.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			cfg.domains[strings.TrimSpace(d)] = true
		}
	}
}

// SetDebugDomains configures which domains should have debug logging enabled.
// An empty list enables all domains.
func SetDebugDomains(domains []string) {
	cfgMutex.Lock()
	defer cfgMutex.Unlock()

	cfg.enabled = true
	if len(domains) == 0 {
		cfg.domains = nil
		return
	}
	cfg.domains = make(map[string]bool)
	for _, d := range domains {
		cfg.domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a domain.
func IsDebugEnabledForDomain(domain string) bool {
	cfgMutex.RLock()
	defer cfgMutex.RUnlock()

	if !cfg.enabled {
		return false
	}
	if cfg.domains == nil {
		return true
	}
	return cfg.domains[domain]
}

func NewLogger(name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.name, level, message)
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.name) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// Debug logs a debug message for a domain, filtered by DEBUG/DEBUG_DOMAINS.
//
//	DEBUG=1                          # enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=throttle   # enable debug only for the throttle domain
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	_ = ctx // reserved for request-scoped fields; no request ID is threaded today
	NewLogger(domain).log(LevelDebug, format, args...)
}

// defaultLogger backs the package-level convenience functions.
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
