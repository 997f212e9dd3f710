package cleanup

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"persistclean/artifact"
)

var logger = loggo.GetLogger("persistclean.cleanup")

// DefaultCallTimeout 외부 저장소 호출 하나의 기본 제한 시간
const DefaultCallTimeout = 30 * time.Second

// Runner 삭제 단계 하나를 실행하는 장애 격리 경계.
// 저장소가 돌려준 오류나 저장소 호출 중 발생한 panic은 모두 Outcome으로만 밖에 나간다.
type Runner struct {
	Clock   clock.Clock
	Timeout time.Duration
}

// NewRunner 실제 시계를 쓰는 Runner 반환
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Clock: clock.WallClock, Timeout: timeout}
}

// Remove ref가 가리키는 객체를 가져와 삭제
func (r *Runner) Remove(ctx context.Context, store Store, ref artifact.Reference) Outcome {
	var h Handle
	err := r.call(ctx, "resolve "+ref.Key, func(ctx context.Context) error {
		var err error
		h, err = store.Resolve(ctx, ref)
		return err
	}, func() {
		// 제한 시간 뒤에 도착한 핸들
		if h != nil {
			h.Release()
		}
	})
	if err != nil {
		logger.Debugf("조회 실패 %q: %v", ref.Key, err)
		return outcomeFor(ref.Name, err)
	}
	return r.delete(ctx, store, ref.Name, h)
}

// RemoveAll ref의 쿼리에 걸리는 객체를 모두 삭제. 하나도 없으면 NotFound 하나를 반환
func (r *Runner) RemoveAll(ctx context.Context, store Store, ref artifact.Reference) []Outcome {
	var handles []Handle
	err := r.call(ctx, "enumerate "+ref.Key, func(ctx context.Context) error {
		var err error
		handles, err = store.Enumerate(ctx, ref)
		return err
	}, func() {
		for _, h := range handles {
			h.Release()
		}
	})
	if err != nil {
		logger.Debugf("열거 실패 %q: %v", ref.Key, err)
		return []Outcome{outcomeFor(ref.Name, err)}
	}
	if len(handles) == 0 {
		return []Outcome{notFound(ref.Name, errors.NotFoundf("%s", ref.Name))}
	}
	outcomes := make([]Outcome, 0, len(handles))
	for _, h := range handles {
		outcomes = append(outcomes, r.delete(ctx, store, ref.Name, h))
	}
	return outcomes
}

func (r *Runner) delete(ctx context.Context, store Store, target string, h Handle) Outcome {
	defer h.Release()
	err := r.call(ctx, "delete "+h.String(), func(ctx context.Context) error {
		return store.Delete(ctx, h)
	}, nil)
	if err != nil {
		logger.Debugf("삭제 실패 %s: %v", h, err)
	}
	return outcomeFor(target, err)
}

// Connect 제한 시간 안에 저장소 연결. 제한 시간 뒤에 열린 연결은 바로 닫는다
func (r *Runner) Connect(ctx context.Context, what string, connect func(context.Context) (Store, error)) (Store, error) {
	var store Store
	err := r.call(ctx, "connect "+what, func(ctx context.Context) error {
		var err error
		store, err = connect(ctx)
		return err
	}, func() {
		logger.Infof("%s: 늦게 열린 연결 닫기", what)
		closeStore(store, what)
	})
	return store, err
}

type callResult struct {
	err error
}

// call fn을 제한 시간 안에서 실행.
// 제한 시간이 지나면 fn의 context를 취소하고 errors.Timeout 오류를 바로 반환한다.
// fn은 백그라운드에서 끝까지 실행되며, 그 뒤 성공했다면 late가 결과를 정리한다.
func (r *Runner) call(ctx context.Context, what string, fn func(context.Context) error, late func()) error {
	if r.Timeout <= 0 {
		return guarded(ctx, what, fn)
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		done <- callResult{err: guarded(ctx, what, fn)}
	}()
	select {
	case res := <-done:
		return res.err
	case <-clk.After(r.Timeout):
		abandon(done, late)
		return errors.Annotatef(errors.Timeout, "%s: no answer after %s", what, r.Timeout)
	case <-ctx.Done():
		abandon(done, late)
		return errors.Annotatef(ctx.Err(), "%s", what)
	}
}

// abandon 포기한 호출이 끝나기를 기다렸다가, 성공했으면 late로 결과를 정리
func abandon(done <-chan callResult, late func()) {
	if late == nil {
		return
	}
	go func() {
		if res := <-done; res.err == nil {
			guardedLate(late)
		}
	}()
}

func guardedLate(late func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("늦은 결과 정리 중 panic: %v", p)
		}
	}()
	late()
}

func guarded(ctx context.Context, what string, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("%s: panic: %v", what, p)
		}
	}()
	return fn(ctx)
}
