package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is switched off.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module is currently paused. The collar
// daemon backs it with config so operators can halt offers, positions, or
// rolls independently without touching live records.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView over a fixed module set, used by config and
// tests.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
