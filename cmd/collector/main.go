// Command collector persistclean 실행 보고서를 받아 대시보드에 보여준다.
package main

import (
	"net/http"
	"os"

	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"persistclean/collector"
	"persistclean/logging"
)

var logger = loggo.GetLogger("persistclean.collector.main")

func main() {
	fs := gnuflag.NewFlagSet("collector", gnuflag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml (default: next to the executable)")
	fs.Parse(true, os.Args[1:])

	// 설정 로드
	cfg := collector.LoadConfig(*configPath)

	closeLog, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		logger.Errorf("로그 설정 실패: %v", err)
		os.Exit(1)
	}
	defer closeLog()

	if cfg.AuthToken == "" {
		logger.Warningf("auth_token이 비어 있습니다. 모든 보고서를 허용합니다")
	}

	hub := collector.NewHub(cfg.AuthToken)
	logger.Infof("HTTP 서버 시작: %s", cfg.GetListenAddr())
	if err := http.ListenAndServe(cfg.GetListenAddr(), hub.Handler()); err != nil {
		logger.Criticalf("ListenAndServe: %v", err)
		os.Exit(1)
	}
}
