// Package scheduler 작업 스케줄러 자동화 인터페이스나 schtasks 명령으로 예약 작업을 삭제한다.
package scheduler

import (
	"context"

	"github.com/go-ole/go-ole"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"persistclean/artifact"
	"persistclean/cleanup"
	"persistclean/com"
)

var logger = loggo.GetLogger("persistclean.scheduler")

// Service 연결된 작업 스케줄러 폴더
type Service struct {
	apt     *com.Apartment
	service *ole.IDispatch
	folder  *ole.IDispatch
	path    string
}

var _ cleanup.Store = (*Service)(nil)

// Connect 로컬 작업 스케줄러 서비스에 연결하고 folder를 염.
// 서비스에 닿지 못하면 cleanup.ErrUnavailable, 폴더가 없으면 not found 오류
func Connect(ctx context.Context, apt *com.Apartment, folder string) (*Service, error) {
	if apt == nil {
		return nil, cleanup.Unavailable(errors.New("COM is not initialised"), "connecting to task scheduler")
	}
	if folder == "" {
		folder = artifact.DefaultTaskFolder
	}
	s := &Service{apt: apt, path: folder}
	err := apt.Do(ctx, func() error {
		svc, err := com.Create("Schedule.Service")
		if err != nil {
			return err
		}
		if err := com.Invoke(svc, "Connect"); err != nil {
			svc.Release()
			return err
		}
		f, err := com.Call(svc, "GetFolder", folder)
		if err != nil {
			svc.Release()
			return &folderError{err}
		}
		s.service, s.folder = svc, f
		return nil
	})
	if err != nil {
		// 취소된 호출이 나중에 연결에 성공했다면 그 객체를 정리
		apt.Later(func() {
			com.ReleaseAll([]*ole.IDispatch{s.folder, s.service})
			s.folder, s.service = nil, nil
		})
		var fe *folderError
		if errors.As(err, &fe) {
			return nil, com.Classify(fe.error, "opening task folder "+folder)
		}
		return nil, cleanup.Unavailable(com.Classify(err, "Schedule.Service"), "connecting to task scheduler")
	}
	logger.Debugf("작업 스케줄러 폴더 %s 연결됨", folder)
	return s, nil
}

// folderError 서비스 연결은 됐지만 폴더를 열지 못한 경우
type folderError struct {
	error
}

func (e *folderError) Unwrap() error { return e.error }

type task struct {
	apt  *com.Apartment
	disp *ole.IDispatch
	name string
}

func (t *task) String() string { return t.name }

func (t *task) Release() {
	if t.disp == nil {
		return
	}
	disp := t.disp
	t.disp = nil
	if err := t.apt.Release(disp); err != nil {
		logger.Debugf("작업 %s 해제 실패: %v", t.name, err)
	}
}

// Resolve ref 이름으로 등록된 작업 조회
func (s *Service) Resolve(ctx context.Context, ref artifact.Reference) (cleanup.Handle, error) {
	t := &task{apt: s.apt, name: ref.Name}
	err := s.apt.Do(ctx, func() error {
		disp, err := com.Call(s.folder, "GetTask", ref.Name)
		if err != nil {
			return err
		}
		t.disp = disp
		return nil
	})
	if err != nil {
		s.apt.Later(func() {
			if t.disp != nil {
				t.disp.Release()
				t.disp = nil
			}
		})
		return nil, com.Classify(err, "getting task "+ref.Key)
	}
	return t, nil
}

// Enumerate 지원하지 않음. 작업은 이름으로만 찾는다
func (s *Service) Enumerate(ctx context.Context, ref artifact.Reference) ([]cleanup.Handle, error) {
	return nil, errors.NotSupportedf("enumerating tasks")
}

// Delete 폴더에서 작업 등록 해제
func (s *Service) Delete(ctx context.Context, h cleanup.Handle) error {
	name := h.String()
	err := s.apt.Do(ctx, func() error {
		return com.Invoke(s.folder, "DeleteTask", name, 0)
	})
	return com.Classify(err, "deleting task "+name)
}

// Close 폴더와 서비스 연결 해제
func (s *Service) Close() error {
	folder, service := s.folder, s.service
	s.folder, s.service = nil, nil
	return s.apt.Release(folder, service)
}

// Connector cleanup.TaskPipeline용 Connect 어댑터
func Connector(apt *com.Apartment, folder string) func(context.Context) (cleanup.Store, error) {
	return func(ctx context.Context) (cleanup.Store, error) {
		s, err := Connect(ctx, apt, folder)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
