// Package problems defines the problem-reporting boundary of the client core.
//
// The core reports trigger failures and unrecoverable connection errors to a
// Sink, but never depends on the sink for correctness. The sink is injected
// at construction time; there is no process-wide singleton.
package problems

import "github.com/chorus-dev/chorus/pkg/logger"

// Severity classifies a problem entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Problem is a structured entry delivered to a Sink.
type Problem struct {
	Message  string
	Severity Severity
	// Source names the reporting component (e.g. "trigger", "transport").
	Source  string
	Details map[string]any
}

// Sink accepts problem entries. Implementations must be safe for concurrent
// use and must not block.
type Sink interface {
	Report(p Problem)
}

// LogSink is the default Sink; it writes problems to the package logger.
type LogSink struct{}

// Report implements Sink.
func (LogSink) Report(p Problem) {
	switch p.Severity {
	case SeverityError:
		logger.Errorf("problem [%s]: %s details=%v", p.Source, p.Message, p.Details)
	case SeverityWarning:
		logger.Warnf("problem [%s]: %s details=%v", p.Source, p.Message, p.Details)
	default:
		logger.Infof("problem [%s]: %s details=%v", p.Source, p.Message, p.Details)
	}
}

// Discard is a Sink that drops all problems. Useful in tests.
type Discard struct{}

// Report implements Sink.
func (Discard) Report(Problem) {}
