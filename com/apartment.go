package com

import (
	"context"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("persistclean.com")

// ErrClosed 아파트먼트가 닫힌 뒤 Do가 반환하는 오류
const ErrClosed = errors.ConstError("COM apartment closed")

const sFalse = 0x00000001

type call struct {
	fn     func() error
	result chan error
}

// Apartment COM이 초기화된 OS 스레드 하나를 소유.
// 모든 go-ole 객체는 Do를 통해 만들고 쓰고 해제하므로 자신을 만든 스레드에서만 다뤄진다.
type Apartment struct {
	calls chan call
	quit  chan struct{}
	done  chan struct{}
}

// Start 고루틴을 스레드에 고정하고 그 스레드에서 COM 초기화
func Start() (*Apartment, error) {
	return start(initialize, ole.CoUninitialize)
}

func initialize() error {
	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if code, ok := Code(err); ok && code == sFalse {
		return nil
	}
	return err
}

func start(init func() error, uninit func()) (*Apartment, error) {
	a := &Apartment{
		calls: make(chan call),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	ready := make(chan error, 1)
	go a.loop(init, uninit, ready)
	if err := <-ready; err != nil {
		return nil, errors.Annotate(err, "initialising COM")
	}
	return a, nil
}

func (a *Apartment) loop(init func() error, uninit func(), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.done)

	if err := init(); err != nil {
		ready <- err
		return
	}
	defer uninit()
	ready <- nil

	for {
		select {
		case c := <-a.calls:
			c.result <- run(c.fn)
		case <-a.quit:
			return
		}
	}
}

func run(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("COM 호출 중 panic: %v", p)
			err = errors.Errorf("COM call panicked: %v", p)
		}
	}()
	return fn()
}

// Do 아파트먼트 스레드에서 fn을 실행하고 기다림.
// ctx가 먼저 끝나면 바로 반환하지만 fn은 스레드에서 끝까지 실행된다.
func (a *Apartment) Do(ctx context.Context, fn func() error) error {
	c := call{fn: fn, result: make(chan error, 1)}
	select {
	case a.calls <- c:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Later 이미 제출된 호출 뒤에 fn을 실행하도록 예약하고 기다리지 않음.
// 취소된 Do가 남긴 객체를 fn이 끝난 다음에 정리할 때 쓴다.
func (a *Apartment) Later(fn func()) {
	go func() {
		if err := a.Do(context.Background(), func() error {
			fn()
			return nil
		}); err != nil {
			logger.Debugf("예약된 정리 작업 실행 안 됨: %v", err)
		}
	}()
}

// Close 아파트먼트를 멈추고 COM 해제. 실행 중인 호출은 먼저 끝난다
func (a *Apartment) Close() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
	<-a.done
}
