//go:build !(linux || darwin || freebsd)

package disk

import "errors"

func freeDiskSpace(string) (int64, error) {
	return -1, errors.New("free disk space is not supported on this platform")
}
