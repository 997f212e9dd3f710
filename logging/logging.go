// Package logging loggo를 콘솔과 (선택적으로) 순환 로그 파일에 연결한다.
package logging

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"
)

var logger = loggo.GetLogger("persistclean.logging")

const fileWriter = "file"

// Options Setup 설정
type Options struct {
	// Level loggo 설정 문자열 (예: "<root>=INFO")
	Level string
	// File 설정하면 모든 로그를 이 파일에도 기록
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup opts 적용 후 로그 파일을 분리하고 닫는 함수 반환
func Setup(opts Options) (func() error, error) {
	if opts.Level != "" {
		if err := loggo.ConfigureLoggers(opts.Level); err != nil {
			return nil, errors.Annotatef(err, "log level %q", opts.Level)
		}
	}
	if opts.File == "" {
		return func() error { return nil }, nil
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	ljLogger := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	if err := loggo.RegisterWriter(fileWriter, loggo.NewSimpleWriter(ljLogger, loggo.DefaultFormatter)); err != nil {
		return nil, errors.Annotate(err, "registering log file writer")
	}
	logger.Debugf("순환 로그 파일 %q 생성: 최대 크기 %d MB, 백업 %d개",
		ljLogger.Filename, ljLogger.MaxSize, ljLogger.MaxBackups)
	return func() error {
		_, _ = loggo.RemoveWriter(fileWriter)
		return ljLogger.Close()
	}, nil
}
