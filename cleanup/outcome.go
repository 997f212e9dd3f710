package cleanup

import (
	"fmt"

	"github.com/juju/errors"
)

// Result 삭제 시도 하나의 최종 상태
type Result int

const (
	Deleted Result = iota
	NotFound
	Failed
)

func (r Result) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not found"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// MarshalText 보고서에 결과 이름으로 기록
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText MarshalText가 쓴 결과 이름 파싱
func (r *Result) UnmarshalText(text []byte) error {
	for _, candidate := range []Result{Deleted, NotFound, Failed} {
		if candidate.String() == string(text) {
			*r = candidate
			return nil
		}
	}
	return errors.NotValidf("result %q", text)
}

// Outcome 단계 하나의 결과. Reason은 실패 시 저장소가 준 진단 문구 그대로
type Outcome struct {
	Pipeline string `json:"pipeline"`
	Stage    string `json:"stage"`
	Target   string `json:"target"`
	Result   Result `json:"result"`
	Reason   string `json:"reason,omitempty"`
}

func deleted(target string) Outcome {
	return Outcome{Target: target, Result: Deleted}
}

func notFound(target string, err error) Outcome {
	o := Outcome{Target: target, Result: NotFound}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

func failed(target string, err error) Outcome {
	return Outcome{Target: target, Result: Failed, Reason: err.Error()}
}

// outcomeFor 삭제 시도의 오류를 결과로 변환
func outcomeFor(target string, err error) Outcome {
	switch {
	case err == nil:
		return deleted(target)
	case errors.Is(err, errors.NotFound):
		return notFound(target, err)
	default:
		return failed(target, err)
	}
}

func fmtArgs(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
