// File: loop/affinity_other.go
//go:build !linux && !windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "errors"

func setAffinity(int) error {
	return errors.New("thread affinity not supported on this platform")
}
