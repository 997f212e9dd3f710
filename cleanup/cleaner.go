// Package cleanup 호스트에서 알려진 지속성 아티팩트를 제거하고 결과를 보고한다.
//
// 예약 작업 파이프라인과 WMI 이벤트 구독 파이프라인이 차례로 실행된다.
// 모든 단계는 Outcome 하나로 끝나며, 저장소 오류나 panic이 단계 밖으로 나가지 않고
// 실패한 단계가 뒤 단계를 막지 않는다.
package cleanup

import (
	"context"
	"fmt"
)

// Cleaner 두 파이프라인을 실행하고 보고서 작성
type Cleaner struct {
	Runner        *Runner
	Printer       *Printer
	Tasks         *TaskPipeline
	Subscriptions *SubscriptionPipeline
}

// Run 전체 정리 작업 수행 후 확정된 요약 반환
func (c *Cleaner) Run(ctx context.Context) Summary {
	runner := c.Runner
	if runner == nil {
		runner = NewRunner(DefaultCallTimeout)
	}
	rep := &Report{}
	if c.Tasks != nil {
		c.runPipeline(PipelineTask, rep, func() {
			c.Tasks.Run(ctx, runner, rep, c.Printer)
		})
		c.Printer.Plain("")
	}
	if c.Subscriptions != nil {
		c.runPipeline(PipelineSubscription, rep, func() {
			c.Subscriptions.Run(ctx, runner, rep, c.Printer)
		})
	}
	summary := rep.Finalize()
	c.Printer.Summary(summary)
	logger.Infof("정리 완료: 삭제=%d, 없음=%d, 실패=%d",
		summary.Deleted, summary.NotFound, summary.Failed)
	return summary
}

// runPipeline 한 파이프라인이 망가져도 다른 파이프라인은 계속 실행
func (c *Cleaner) runPipeline(name string, rep *Report, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("%s 파이프라인 중단: %v", name, p)
			o := Outcome{
				Pipeline: name,
				Stage:    StagePipeline,
				Target:   name,
				Result:   Failed,
				Reason:   fmt.Sprintf("aborted: %v", p),
			}
			rep.Record(o)
			c.Printer.Error("%s pipeline aborted: %v", name, p)
		}
	}()
	fn()
}
