//go:build !windows

package input

import (
	"log/slog"
)

// Stub adapters for platforms without a system hook implementation.
// The transport and mock-receive mode still work; capture and injection
// report the missing capability.

// CheckPermission probes HID access.
func CheckPermission() error {
	return ErrPermissionDenied
}

// NewSystemCapture is unavailable here.
func NewSystemCapture(log *slog.Logger) (Capture, error) {
	return nil, ErrPermissionDenied
}

// NewSystemInjector is unavailable here.
func NewSystemInjector() (Injector, error) {
	return nil, ErrPermissionDenied
}
