// Package host 로컬 머신 정보를 제공한다.
package host

import (
	"net"
	"os"
	"runtime"
)

// Info 보고서를 보낸 머신 정보
type Info struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	MacAddr  string `json:"mac_addr"`
	Elevated bool   `json:"elevated"`
}

// Describe 이 머신의 Info 수집. 알 수 없는 값은 비워 둠
func Describe() Info {
	hostname, _ := os.Hostname()
	return Info{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		MacAddr:  macAddr(),
		Elevated: Elevated(),
	}
}

// macAddr 루프백이 아닌 활성 인터페이스 중 첫 번째의 MAC 주소
func macAddr() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			if iface.HardwareAddr != nil {
				return iface.HardwareAddr.String()
			}
		}
	}
	return ""
}
