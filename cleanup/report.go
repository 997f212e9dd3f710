package cleanup

import "sync"

// 결과와 요약에 쓰는 파이프라인 이름
const (
	PipelineTask         = "task"
	PipelineSubscription = "subscription"
)

// Report 실행 한 번의 결과 누적. Cleaner가 소유하며
// 뮤텍스는 제한 시간을 넘긴 단계로부터 보호하는 용도
type Report struct {
	mu          sync.Mutex
	outcomes    []Outcome
	diagnostics []string
	summary     *Summary
}

// Record 결과 하나 추가. Finalize 이후 기록은 무시
func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		logger.Warningf("확정 이후 기록된 결과 무시: %q", o.Target)
		return
	}
	r.outcomes = append(r.outcomes, o)
}

// Diagnose 저장소 수준 진단 문구 추가
func (r *Report) Diagnose(store, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return
	}
	r.diagnostics = append(r.diagnostics, store+": "+text)
}

// Deleted 지금까지의 삭제 개수
func (r *Report) Deleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outcomes {
		if o.Result == Deleted {
			n++
		}
	}
	return n
}

// Counts 결과별 개수
type Counts struct {
	Deleted  int `json:"deleted"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

// Total 전체 결과 개수
func (c Counts) Total() int {
	return c.Deleted + c.NotFound + c.Failed
}

func (c *Counts) add(r Result) {
	switch r {
	case Deleted:
		c.Deleted++
	case NotFound:
		c.NotFound++
	case Failed:
		c.Failed++
	}
}

// Summary 확정된 읽기 전용 보고서
type Summary struct {
	Counts
	Pipelines    map[string]Counts `json:"pipelines"`
	Outcomes     []Outcome         `json:"outcomes"`
	Diagnostics  []string          `json:"diagnostics,omitempty"`
	Degraded     bool              `json:"degraded"`
	AlreadyClean bool              `json:"already_clean"`
}

// Finalize 보고서를 닫고 요약 반환. 다시 호출하면 같은 요약을 반환
func (r *Report) Finalize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return *r.summary
	}
	s := Summary{
		Pipelines:   make(map[string]Counts),
		Outcomes:    append([]Outcome(nil), r.outcomes...),
		Diagnostics: append([]string(nil), r.diagnostics...),
	}
	for _, o := range r.outcomes {
		s.Counts.add(o.Result)
		pc := s.Pipelines[o.Pipeline]
		pc.add(o.Result)
		s.Pipelines[o.Pipeline] = pc
	}
	s.Degraded = s.Failed > 0
	sub := s.Pipelines[PipelineSubscription]
	s.AlreadyClean = sub.Deleted == 0 && sub.Failed == 0
	r.summary = &s
	return s
}

// ExitCode 실패가 없으면 0, 있으면 1
func (s Summary) ExitCode() int {
	if s.Degraded {
		return 1
	}
	return 0
}
