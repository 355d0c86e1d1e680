package orchlog

import "testing"

func TestNewNop_NeverPanics(t *testing.T) {
	l := NewNop()
	l.Debug("debug", "k", "v")
	l.Info("info")
	l.Warn("warn", "k", 1)
	l.Error("error")
	child := l.With("request_id", "abc")
	child.Info("still fine")
}
