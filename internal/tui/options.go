package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// WithCompact sets the initial card density.
func WithCompact(compact bool) Option {
	return func(m *Model) {
		m.compact = compact
	}
}

// WithPollInterval sets how often sprint progress refreshes. Zero disables polling.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Model) {
		if interval >= 0 {
			m.pollInterval = interval
		}
	}
}

// WithRequestTimeout bounds every service call issued by the model.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(m *Model) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithClipboard replaces the clipboard writer used by copy actions.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyToClipboard = write
		}
	}
}

// WithClock overrides the time source used for relative due dates.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}
