// Package audit 정리 실행마다 한 줄 기록을 시스템 로그(Windows 이벤트 로그, 그 외 syslog)에 남긴다.
package audit

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/kardianos/service"

	"persistclean/cleanup"
)

// Logger Record가 쓰는 service.Logger 일부
type Logger interface {
	Info(v ...interface{}) error
	Warning(v ...interface{}) error
}

// program service.Interface 구현. 서비스로 실행하지 않고 시스템 로거만 빌려 씀
type program struct{}

func (program) Start(service.Service) error { return nil }
func (program) Stop(service.Service) error  { return nil }

// Open name으로 등록된 시스템 로거 반환
func Open(name string) (service.Logger, error) {
	svc, err := service.New(program{}, &service.Config{
		Name:        name,
		DisplayName: name,
		Description: "Persistence artifact cleanup",
	})
	if err != nil {
		return nil, errors.Annotate(err, "creating service definition")
	}
	l, err := svc.SystemLogger(nil)
	if err != nil {
		return nil, errors.Annotate(err, "opening system logger")
	}
	return l, nil
}

// Line 요약의 감사 기록 문구
func Line(summary cleanup.Summary) string {
	return fmt.Sprintf("cleanup finished: %d deleted, %d not found, %d failed",
		summary.Deleted, summary.NotFound, summary.Failed)
}

// Record 감사 기록 작성. 실패가 있으면 경고로 기록
func Record(l Logger, summary cleanup.Summary) error {
	if summary.Degraded {
		return errors.Trace(l.Warning(Line(summary)))
	}
	return errors.Trace(l.Info(Line(summary)))
}
