package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/loggo"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("persistclean.config")

// FileName 실행 파일 옆에서 찾는 설정 파일 이름
const FileName = "config.yaml"

// Config 정리 도구 설정 구조체
type Config struct {
	InstallName           string `yaml:"install_name"`           // 설치된 지속성 아티팩트 이름
	TaskFolder            string `yaml:"task_folder"`            // 작업 스케줄러 폴더
	TempScript            string `yaml:"temp_script"`            // 임시 폴더의 페이로드 스크립트 이름
	SubscriptionNamespace string `yaml:"subscription_namespace"` // WMI 이벤트 구독 네임스페이스
	ProcessNamespace      string `yaml:"process_namespace"`      // WMI 프로세스 네임스페이스
	ConsumerHost          string `yaml:"consumer_host"`          // 스크립트 소비자 호스트 프로세스
	CallTimeout           int    `yaml:"call_timeout"`           // 저장소 호출 제한 시간 (초)
	LogFile               string `yaml:"log_file"`               // 로그 파일 경로 (비어 있으면 로그 파일 없음)
	LogLevel              string `yaml:"log_level"`              // loggo 설정 문자열 (예: <root>=INFO)
	EventLog              bool   `yaml:"event_log"`              // 요약을 시스템 로그에 기록
	ReportAddress         string `yaml:"report_address"`         // 보고서 수집 서버 주소 (예: localhost:8080)
	AuthToken             string `yaml:"auth_token"`             // 인증 토큰 (보안)
}

// DefaultConfig 기본 설정값 반환
func DefaultConfig() *Config {
	return &Config{
		InstallName:           "GIMCTestBSI",
		TaskFolder:            `\`,
		TempScript:            "gimc_payload.js",
		SubscriptionNamespace: `root\subscription`,
		ProcessNamespace:      `root\cimv2`,
		ConsumerHost:          "scrcons.exe",
		CallTimeout:           30,
		LogLevel:              "<root>=INFO",
	}
}

// Load 실행 파일 옆의 설정 파일 로드 (파일이 없으면 기본값 사용)
func Load() *Config {
	exePath, err := os.Executable()
	if err != nil {
		logger.Warningf("설정: 실행 파일 경로를 가져올 수 없습니다. 기본값 사용: %v", err)
		return DefaultConfig()
	}
	return LoadFile(filepath.Join(filepath.Dir(exePath), FileName))
}

// LoadFile 지정한 설정 파일 로드 (읽기나 파싱에 실패하면 기본값 사용)
func LoadFile(path string) *Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof("설정: %s 파일이 없습니다. 기본값 사용", path)
		} else {
			logger.Warningf("설정: 파일 읽기 오류. 기본값 사용: %v", err)
		}
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Warningf("설정: YAML 파싱 오류. 기본값 사용: %v", err)
		return DefaultConfig()
	}

	// 비어 있는 필수 값은 기본값으로 채움
	def := DefaultConfig()
	if cfg.InstallName == "" {
		cfg.InstallName = def.InstallName
	}
	if cfg.CallTimeout < 0 {
		cfg.CallTimeout = def.CallTimeout
	}

	logger.Infof("설정: %s 로드 완료", path)
	return cfg
}

// GetCallTimeout 저장소 호출 제한 시간을 time.Duration으로 반환 (0이면 제한 없음)
func (c *Config) GetCallTimeout() time.Duration {
	return time.Duration(c.CallTimeout) * time.Second
}

// TempScriptPath 임시 페이로드 스크립트의 전체 경로 반환
func (c *Config) TempScriptPath() string {
	if c.TempScript == "" {
		return ""
	}
	return filepath.Join(os.TempDir(), c.TempScript)
}
