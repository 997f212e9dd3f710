package scheduler

import (
	"context"
	"os/exec"
	"strings"

	"github.com/juju/errors"
)

// Command schtasks를 실행해 작업 삭제
type Command struct {
	Path string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommand 검색 경로의 schtasks.exe를 실행하는 Command 반환
func NewCommand() *Command {
	return &Command{Path: "schtasks.exe", run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	return cmd.CombinedOutput()
}

// DeleteTask `schtasks /Delete /TN <path> /F` 실행.
// 종료 코드와 출력으로 삭제됨, 없음, 삭제 실패를 구분한다.
func (c *Command) DeleteTask(ctx context.Context, path string) error {
	out, err := c.run(ctx, c.Path, "/Delete", "/TN", path, "/F")
	text := strings.TrimSpace(string(out))
	if err == nil {
		logger.Infof("schtasks로 %s 삭제: %s", path, text)
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return errors.Annotatef(err, "running %s", c.Path)
	}
	if missingTask(text) {
		return errors.NotFoundf("task %s", path)
	}
	if text == "" {
		text = exitErr.Error()
	}
	return errors.New(text)
}

// missingTask 없는 작업에 대한 schtasks 영어 메시지 인식
func missingTask(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "cannot find the file specified") ||
		strings.Contains(lower, "does not exist in the system")
}
