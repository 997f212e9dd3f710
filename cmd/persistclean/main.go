// Command persistclean GIMC 테스트 임플란트가 설치한 예약 작업과 WMI 이벤트 구독 지속성을 제거한다.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"persistclean/artifact"
	"persistclean/audit"
	"persistclean/cleanup"
	"persistclean/com"
	"persistclean/config"
	"persistclean/host"
	"persistclean/logging"
	"persistclean/reporting"
	"persistclean/scheduler"
	"persistclean/wmi"
)

var logger = loggo.GetLogger("persistclean")

const reportTimeout = 15 * time.Second

type options struct {
	configPath string
}

func parseArgs(args []string) (options, error) {
	var opts options
	fs := gnuflag.NewFlagSet("persistclean", gnuflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (default: next to the executable)")
	if err := fs.Parse(true, args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) (code int) {
	out := cleanup.NewPrinter(stdout)
	defer func() {
		if p := recover(); p != nil {
			logger.Criticalf("정리 중단: %v", p)
			out.Error("Cleanup aborted: %v", p)
			code = 1
		}
	}()

	opts, err := parseArgs(args)
	if err != nil {
		out.Error("%v", err)
		out.Plain("usage: persistclean [--config path]")
		return 2
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg = config.LoadFile(opts.configPath)
	} else {
		cfg = config.Load()
	}

	closeLog, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		out.Warning("Logging not configured: %v", err)
	} else {
		defer func() {
			if err := closeLog(); err != nil {
				logger.Debugf("로그 파일 닫기 실패: %v", err)
			}
		}()
	}

	info := host.Describe()
	logger.Infof("정리 시작: 대상=%q, 호스트=%s (%s/%s)", cfg.InstallName, info.Hostname, info.OS, info.Arch)
	if !info.Elevated {
		out.Warning("Not running as administrator. Some artifacts may not be removable.")
		out.Plain("")
	}

	apt, err := com.Start()
	if err != nil {
		// 아파트먼트가 nil이면 연결기는 사용 불가를 보고한다.
		// 작업 파이프라인은 schtasks.exe로 넘어가고 각 네임스페이스는 실패로 기록됨
		logger.Errorf("COM 초기화 실패: %v", err)
	} else {
		defer apt.Close()
	}

	name := artifact.Identifier(cfg.InstallName)
	cleaner := &cleanup.Cleaner{
		Runner:  &cleanup.Runner{Clock: clock.WallClock, Timeout: cfg.GetCallTimeout()},
		Printer: out,
		Tasks: &cleanup.TaskPipeline{
			Name:       name,
			Folder:     cfg.TaskFolder,
			Connect:    scheduler.Connector(apt, cfg.TaskFolder),
			Fallback:   scheduler.NewCommand(),
			TempFile:   cfg.TempScriptPath(),
			RemoveFile: os.Remove,
		},
		Subscriptions: &cleanup.SubscriptionPipeline{
			Name:             name,
			Namespace:        cfg.SubscriptionNamespace,
			ProcessNamespace: cfg.ProcessNamespace,
			ConsumerHost:     cfg.ConsumerHost,
			Connect:          wmi.Connector(apt),
		},
	}

	ctx := context.Background()
	summary := cleaner.Run(ctx)

	if cfg.EventLog {
		recordAudit(summary)
	}
	if cfg.ReportAddress != "" {
		sendReport(ctx, out, cfg, info, summary)
	}
	return summary.ExitCode()
}

func recordAudit(summary cleanup.Summary) {
	l, err := audit.Open("persistclean")
	if err != nil {
		logger.Warningf("시스템 로그 사용 불가: %v", err)
		return
	}
	if err := audit.Record(l, summary); err != nil {
		logger.Warningf("시스템 로그 기록 실패: %v", err)
	}
}

// sendReport 요약 업로드. 실패는 기록하고 출력하지만 종료 코드는 바꾸지 않음
func sendReport(ctx context.Context, out *cleanup.Printer, cfg *config.Config, info host.Info, summary cleanup.Summary) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()
	if err := reporting.Send(ctx, cfg.ReportAddress, cfg.AuthToken, info, summary); err != nil {
		logger.Warningf("보고서 업로드 실패: %v", err)
		out.Warning("Could not send report to %s: %v", cfg.ReportAddress, err)
		return
	}
	out.Info("Report sent to %s", cfg.ReportAddress)
}
