package cleanup

import (
	"context"

	"github.com/juju/errors"

	"persistclean/artifact"
)

// ErrUnavailable 객체 하나가 아니라 저장소 연결이나 서비스 계층 자체의 실패.
// 이 오류만 파이프라인을 대체 경로로 전환시킨다.
const ErrUnavailable = errors.ConstError("store unavailable")

// Handle 삭제할 준비가 된 객체
type Handle interface {
	String() string
	// Release 핸들에 묶인 자원 해제. 여러 번 호출해도 안전
	Release()
}

// Store 연결된 객체 저장소 (작업 스케줄러 또는 WMI 네임스페이스 하나).
// 없는 객체는 errors.Is(err, errors.NotFound)를 만족하는 오류로 알린다.
type Store interface {
	// Resolve ref가 가리키는 객체 하나 조회
	Resolve(ctx context.Context, ref artifact.Reference) (Handle, error)
	// Enumerate ref의 쿼리에 걸리는 객체 전부 반환
	Enumerate(ctx context.Context, ref artifact.Reference) ([]Handle, error)
	// Delete h의 객체 삭제. 프로세스는 종료
	Delete(ctx context.Context, h Handle) error
	// Close 연결 해제
	Close() error
}

// Unavailable err를 연결 수준 실패로 표시
func Unavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Annotatef(ErrUnavailable, "%s: %v", fmtArgs(format, args...), err)
}
