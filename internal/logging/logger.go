package logging

import (
	"strings" // String replacement

	"github.com/sirupsen/logrus" // Structured logging
)

// Redacted replaces every secret found in log output
const Redacted = "[REDACTED]"

// Redactor scrubs known secrets out of arbitrary strings
type Redactor struct {
	secrets []string
}

// NewRedactor builds a Redactor, ignoring empty or too-short secrets
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if len(s) >= 3 {
			r.secrets = append(r.secrets, s) // Short values would shred unrelated text
		}
	}
	return r
}

// Apply returns s with every secret replaced
func (r *Redactor) Apply(s string) string {
	if r == nil {
		return s
	}
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}

// RedactHook is a logrus hook that scrubs secrets from messages and fields
type RedactHook struct {
	redactor *Redactor
}

// NewRedactHook creates the hook for the given secrets
func NewRedactHook(secrets ...string) *RedactHook {
	return &RedactHook{redactor: NewRedactor(secrets...)}
}

// Levels applies the hook to every level
func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire rewrites the entry before any formatter sees it
func (h *RedactHook) Fire(entry *logrus.Entry) error {
	entry.Message = h.redactor.Apply(entry.Message)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			entry.Data[k] = h.redactor.Apply(val)
		case error:
			entry.Data[k] = h.redactor.Apply(val.Error())
		}
	}
	return nil
}

// Setup configures the standard logrus logger
func Setup(level string, json bool, secrets ...string) {
	if json {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine-readable in production
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}
	logrus.AddHook(NewRedactHook(secrets...)) // Never let credentials reach a sink
}
