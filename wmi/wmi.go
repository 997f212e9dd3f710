// Package wmi 스크립팅 API(SWbemLocator / SWbemServices)로 WMI 객체를 조회, 삭제, 종료한다.
package wmi

import (
	"context"
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"persistclean/artifact"
	"persistclean/cleanup"
	"persistclean/com"
)

var logger = loggo.GetLogger("persistclean.wmi")

// Namespace 로컬 머신의 연결된 WMI 네임스페이스
type Namespace struct {
	apt      *com.Apartment
	name     string
	locator  *ole.IDispatch
	services *ole.IDispatch
}

var _ cleanup.Store = (*Namespace)(nil)

// Connect namespace(예: root\subscription) 연결. 실패는 모두 cleanup.ErrUnavailable
func Connect(ctx context.Context, apt *com.Apartment, namespace string) (*Namespace, error) {
	if apt == nil {
		return nil, cleanup.Unavailable(errors.New("COM is not initialised"), "connecting to %s", namespace)
	}
	n := &Namespace{apt: apt, name: namespace}
	err := apt.Do(ctx, func() error {
		locator, err := com.Create("WbemScripting.SWbemLocator")
		if err != nil {
			return err
		}
		services, err := com.Call(locator, "ConnectServer", ".", namespace)
		if err != nil {
			locator.Release()
			return err
		}
		n.locator, n.services = locator, services
		return nil
	})
	if err != nil {
		apt.Later(func() {
			com.ReleaseAll([]*ole.IDispatch{n.services, n.locator})
			n.services, n.locator = nil, nil
		})
		return nil, cleanup.Unavailable(com.Classify(err, "ConnectServer"), "connecting to %s", namespace)
	}
	logger.Debugf("%s 연결됨", namespace)
	return n, nil
}

// Connector cleanup.SubscriptionPipeline용 Connect 어댑터
func Connector(apt *com.Apartment) func(context.Context, string) (cleanup.Store, error) {
	return func(ctx context.Context, namespace string) (cleanup.Store, error) {
		n, err := Connect(ctx, apt, namespace)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
}

type object struct {
	apt     *com.Apartment
	disp    *ole.IDispatch
	label   string
	process bool
}

func (o *object) String() string { return o.label }

// drop 아파트먼트 스레드에서 바로 해제
func (o *object) drop() {
	if o.disp != nil {
		o.disp.Release()
		o.disp = nil
	}
}

func (o *object) Release() {
	if o.disp == nil {
		return
	}
	disp := o.disp
	o.disp = nil
	if err := o.apt.Release(disp); err != nil {
		logger.Debugf("%s 해제 실패: %v", o.label, err)
	}
}

// Resolve ref 경로의 객체 조회
func (n *Namespace) Resolve(ctx context.Context, ref artifact.Reference) (cleanup.Handle, error) {
	obj := &object{apt: n.apt, label: ref.Key, process: ref.Store.Kind == artifact.KindProcess}
	err := n.apt.Do(ctx, func() error {
		disp, err := com.Call(n.services, "Get", ref.Key)
		if err != nil {
			return err
		}
		obj.disp = disp
		return nil
	})
	if err != nil {
		n.apt.Later(obj.drop)
		return nil, com.Classify(err, fmt.Sprintf("getting %s", ref.Key))
	}
	return obj, nil
}

// Enumerate ref의 WQL 쿼리를 실행하고 걸린 객체 전부 반환
func (n *Namespace) Enumerate(ctx context.Context, ref artifact.Reference) ([]cleanup.Handle, error) {
	var objects []*object
	err := n.apt.Do(ctx, func() error {
		set, err := com.Call(n.services, "ExecQuery", ref.Key)
		if err != nil {
			return err
		}
		defer set.Release()
		items, err := com.Each(set)
		if err != nil {
			return err
		}
		for i, item := range items {
			objects = append(objects, &object{
				apt:     n.apt,
				disp:    item,
				label:   describe(item, ref, i),
				process: ref.Store.Kind == artifact.KindProcess,
			})
		}
		return nil
	})
	if err != nil {
		// 아파트먼트 스레드에서 fn이 끝난 다음에 해제
		n.apt.Later(func() {
			for _, o := range objects {
				o.drop()
			}
		})
		return nil, com.Classify(err, fmt.Sprintf("querying %s", n.name))
	}
	handles := make([]cleanup.Handle, 0, len(objects))
	for _, o := range objects {
		handles = append(handles, o)
	}
	return handles, nil
}

// describe 열거된 객체의 출력용 이름. 아파트먼트 스레드에서만 호출
func describe(item *ole.IDispatch, ref artifact.Reference, i int) string {
	if ref.Store.Kind == artifact.KindProcess {
		if v, err := oleutil.GetProperty(item, "ProcessId"); err == nil {
			defer v.Clear()
			return fmt.Sprintf("%s (pid %v)", ref.Name, v.Value())
		}
	}
	return fmt.Sprintf("%s #%d", ref.Name, i+1)
}

// Delete 구독 객체 삭제 또는 프로세스 종료
func (n *Namespace) Delete(ctx context.Context, h cleanup.Handle) error {
	obj, ok := h.(*object)
	if !ok || obj.disp == nil {
		return errors.NotValidf("handle %v", h)
	}
	if obj.process {
		return n.terminate(ctx, obj)
	}
	err := n.apt.Do(ctx, func() error {
		return com.Invoke(obj.disp, "Delete_")
	})
	return com.Classify(err, "deleting "+obj.label)
}

// Win32_Process.Terminate 반환 값
const (
	terminateOK               = 0
	terminateAccessDenied     = 2
	terminateInsufficientPriv = 3
	terminatePathNotFound     = 9
)

func (n *Namespace) terminate(ctx context.Context, obj *object) error {
	var rc int64
	err := n.apt.Do(ctx, func() error {
		v, err := oleutil.CallMethod(obj.disp, "Terminate")
		if err != nil {
			return err
		}
		defer v.Clear()
		rc = returnValue(v)
		return nil
	})
	if err != nil {
		return com.Classify(err, "terminating "+obj.label)
	}
	switch rc {
	case terminateOK:
		return nil
	case terminatePathNotFound:
		return errors.NotFoundf("process %s", obj.label)
	case terminateAccessDenied, terminateInsufficientPriv:
		return errors.Annotatef(errors.Forbidden, "terminating %s: return value %d", obj.label, rc)
	}
	return errors.Errorf("terminating %s: return value %d", obj.label, rc)
}

func returnValue(v *ole.VARIANT) int64 {
	switch x := v.Value().(type) {
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	}
	return -1
}

// Close services와 locator 객체 해제
func (n *Namespace) Close() error {
	services, locator := n.services, n.locator
	n.services, n.locator = nil, nil
	return n.apt.Release(services, locator)
}
