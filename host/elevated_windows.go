//go:build windows

package host

import "golang.org/x/sys/windows"

// Elevated 프로세스 토큰이 관리자 권한으로 상승됐는지 여부
func Elevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
