//go:build windows

package geometry

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
)

type rect32 struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type monitorInfo struct {
	CbSize    uint32
	RcMonitor rect32
	RcWork    rect32
	DwFlags   uint32
}

// Detect enumerates the connected displays into a layout. Refreshed on
// session start and on explicit display-topology change.
func Detect() (Layout, error) {
	var displays []Rect
	cb := windows.NewCallback(func(hMonitor, hdc uintptr, rc *rect32, lparam uintptr) uintptr {
		mi := monitorInfo{CbSize: uint32(unsafe.Sizeof(monitorInfo{}))}
		if ret, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&mi))); ret != 0 {
			displays = append(displays, Rect{
				X: float64(mi.RcMonitor.Left),
				Y: float64(mi.RcMonitor.Top),
				W: float64(mi.RcMonitor.Right - mi.RcMonitor.Left),
				H: float64(mi.RcMonitor.Bottom - mi.RcMonitor.Top),
			})
		}
		return 1 // continue enumeration
	})
	ret, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0)
	if ret == 0 {
		return Layout{}, fmt.Errorf("geometry: EnumDisplayMonitors: %w", err)
	}
	if len(displays) == 0 {
		return Layout{}, fmt.Errorf("geometry: no displays detected")
	}
	return NewLayout(displays), nil
}
