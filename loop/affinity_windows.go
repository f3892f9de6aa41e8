// File: loop/affinity_windows.go
//go:build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var procSetThreadAffinityMask = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadAffinityMask")

func setAffinity(cpu int) error {
	if cpu >= 64 {
		return fmt.Errorf("cpu %d outside the thread affinity mask", cpu)
	}
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), uintptr(1)<<cpu)
	if ret == 0 {
		return err
	}
	return nil
}
