package collector

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 수집 서버 설정 구조체
type Config struct {
	Port      string `yaml:"port"`       // 서버 포트 (예: 8080)
	AuthToken string `yaml:"auth_token"` // 인증 토큰 (보안)
	LogFile   string `yaml:"log_file"`   // 로그 파일 경로
	LogLevel  string `yaml:"log_level"`  // loggo 설정 문자열
}

// DefaultConfig 기본 설정값 반환
func DefaultConfig() *Config {
	return &Config{
		Port:     "8080",
		LogLevel: "<root>=INFO",
	}
}

// LoadConfig 설정 파일 로드 (경로가 비어 있으면 실행 파일 옆의 config.yaml, 실패하면 기본값 사용)
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()

	if path == "" {
		exePath, err := os.Executable()
		if err != nil {
			logger.Warningf("설정: 실행 파일 경로를 가져올 수 없습니다. 기본값 사용: %v", err)
			return cfg
		}
		path = filepath.Join(filepath.Dir(exePath), "config.yaml")
	}

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

	logger.Infof("설정: %s 로드 완료", path)
	return cfg
}

// GetListenAddr 서버 리스닝 주소 반환
func (c *Config) GetListenAddr() string {
	return ":" + c.Port
}
