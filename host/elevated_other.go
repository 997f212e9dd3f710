//go:build !windows

package host

import "os"

// Elevated root로 실행 중인지 여부
func Elevated() bool {
	return os.Geteuid() == 0
}
