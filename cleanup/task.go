package cleanup

import (
	"context"
	"os"

	"github.com/juju/errors"

	"persistclean/artifact"
)

// 출력에 쓰는 단계 이름
const (
	StageConnect  = "connect"
	StageTask     = "scheduled task"
	StagePipeline = "pipeline"
)

// TaskCommand 명령줄로 예약 작업을 지우는 경로.
// 작업이 없으면 errors.NotFound 오류를 반환해야 한다.
type TaskCommand interface {
	DeleteTask(ctx context.Context, path string) error
}

// TaskPipeline 예약 작업 하나를 삭제.
// 작업 스케줄러 서비스 자체에 연결할 수 없을 때만 TaskCommand로 대체한다.
type TaskPipeline struct {
	Name   artifact.Identifier
	Folder string

	// Connect 작업 스케줄러 연결.
	// 대체 경로를 타야 하는 실패는 errors.Is(err, ErrUnavailable)를 만족해야 한다.
	Connect  func(ctx context.Context) (Store, error)
	Fallback TaskCommand

	// TempFile 작업 삭제 뒤 가능하면 지우는 임시 스크립트
	TempFile   string
	RemoveFile func(path string) error
}

// Run 파이프라인 실행. 작업 결과는 항상 정확히 하나 기록된다
func (p *TaskPipeline) Run(ctx context.Context, r *Runner, rep *Report, out *Printer) {
	out.Plain("=== Removing Scheduled Task Persistence ===")
	out.Plain("Task: %s", p.Name)
	out.Plain("")

	ref := artifact.Resolve(p.Name, artifact.TaskFolder(p.Folder))
	o := p.remove(ctx, r, rep, out, ref)
	o.Pipeline = PipelineTask
	o.Stage = StageTask
	rep.Record(o)
	out.Outcome(o)

	p.removeTempFile(out)
}

func (p *TaskPipeline) remove(ctx context.Context, r *Runner, rep *Report, out *Printer, ref artifact.Reference) Outcome {
	connect := p.Connect
	if connect == nil {
		connect = func(context.Context) (Store, error) {
			return nil, errors.Annotatef(ErrUnavailable, "no task scheduler connector")
		}
	}
	store, err := r.Connect(ctx, "task scheduler", connect)
	if err == nil {
		defer closeStore(store, "task scheduler")
		return r.Remove(ctx, store, ref)
	}
	if !errors.Is(err, ErrUnavailable) && !errors.Is(err, errors.Timeout) {
		return outcomeFor(ref.Name, err)
	}

	logger.Warningf("작업 스케줄러 서비스 사용 불가: %v", err)
	rep.Diagnose("task scheduler", err.Error())
	out.Error("Task Scheduler API failed: %v", err)
	if p.Fallback == nil {
		return failed(ref.Name, errors.Annotate(err, "no command line fallback"))
	}
	out.Info("Trying command-line method...")
	err = r.call(ctx, "schtasks delete "+ref.Key, func(ctx context.Context) error {
		return p.Fallback.DeleteTask(ctx, ref.Key)
	}, nil)
	if err != nil && !errors.Is(err, errors.NotFound) {
		rep.Diagnose("schtasks", err.Error())
	}
	return outcomeFor(ref.Name, err)
}

// removeTempFile 결과를 기록하지 않는다. 페이로드 스크립트는 남은 파일일 뿐 지속성 수단이 아님.
// panic도 여기서 끝나며 실행 결과에 영향을 주지 않는다.
func (p *TaskPipeline) removeTempFile(out *Printer) {
	if p.TempFile == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("임시 스크립트 %s 삭제 중 panic: %v", p.TempFile, r)
			out.Miss("Could not delete temporary script %s (not critical)", p.TempFile)
		}
	}()
	remove := p.RemoveFile
	if remove == nil {
		remove = os.Remove
	}
	err := remove(p.TempFile)
	switch {
	case err == nil:
		out.Success("Deleted temporary script: %s", p.TempFile)
	case os.IsNotExist(err) || errors.Is(err, errors.NotFound):
		logger.Debugf("임시 스크립트 %s 없음", p.TempFile)
	default:
		logger.Infof("임시 스크립트 %s 삭제 실패: %v", p.TempFile, err)
		out.Miss("Could not delete temporary script %s (not critical)", p.TempFile)
	}
}

func closeStore(store Store, what string) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warningf("%s 연결 닫기 실패: %v", what, err)
	}
}
