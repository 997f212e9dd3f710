package cleanup

import (
	"context"

	"persistclean/artifact"
)

// DefaultConsumerHost ActiveScriptEventConsumer 스크립트를 실행하는 프로세스
const DefaultConsumerHost = "scrcons.exe"

// SubscriptionPipeline WMI 이벤트 구독 제거.
// 바인딩, 필터, 소비자, 타이머 순서로 지운 뒤 실행 중인 소비자 호스트 프로세스를 종료한다.
// 앞 단계의 결과와 상관없이 모든 단계가 이 순서대로 실행된다.
type SubscriptionPipeline struct {
	Name             artifact.Identifier
	Namespace        string
	ProcessNamespace string
	ConsumerHost     string

	// Connect WMI 네임스페이스 연결
	Connect func(ctx context.Context, namespace string) (Store, error)
}

type stage struct {
	name string
	ref  artifact.Reference
}

// stages 삭제 순서대로 나열한 구독 객체. 바인딩이 필터와 소비자를 참조하므로 먼저 지운다
func (p *SubscriptionPipeline) stages() []stage {
	classes := []artifact.Class{
		artifact.FilterBinding,
		artifact.EventFilter,
		artifact.ScriptConsumer,
		artifact.TimerInstruction,
	}
	stages := make([]stage, 0, len(classes))
	for _, class := range classes {
		stages = append(stages, stage{
			name: string(class),
			ref:  artifact.Resolve(p.Name, artifact.Subscription(p.Namespace, class)),
		})
	}
	return stages
}

// Run 모든 단계를 실행하고 결과를 rep에 기록
func (p *SubscriptionPipeline) Run(ctx context.Context, r *Runner, rep *Report, out *Printer) {
	out.Plain("=== Removing WMI Event Subscription Persistence ===")
	out.Plain("Target: %s", p.Name)
	out.Plain("")

	record := func(stageName string, o Outcome) {
		o.Pipeline = PipelineSubscription
		o.Stage = stageName
		rep.Record(o)
		out.Outcome(o)
	}

	p.teardown(ctx, r, rep, record)
	p.terminateHosts(ctx, r, rep, record)
}

func (p *SubscriptionPipeline) teardown(ctx context.Context, r *Runner, rep *Report, record func(string, Outcome)) {
	stages := p.stages()
	namespace := stages[0].ref.Store.Namespace
	store, ok := p.connect(ctx, r, rep, namespace, record)
	if !ok {
		return
	}
	defer closeStore(store, namespace)
	for _, st := range stages {
		if st.ref.Enumerate {
			for _, o := range r.RemoveAll(ctx, store, st.ref) {
				record(st.name, o)
			}
			continue
		}
		record(st.name, r.Remove(ctx, store, st.ref))
	}
}

// terminateHosts 이미 실행된 페이로드를 돌리고 있을 수 있는 소비자 호스트 프로세스 종료
func (p *SubscriptionPipeline) terminateHosts(ctx context.Context, r *Runner, rep *Report, record func(string, Outcome)) {
	host := p.ConsumerHost
	if host == "" {
		host = DefaultConsumerHost
	}
	ref := artifact.Resolve(artifact.Identifier(host), artifact.Processes(p.ProcessNamespace))
	store, ok := p.connect(ctx, r, rep, ref.Store.Namespace, record)
	if !ok {
		return
	}
	defer closeStore(store, ref.Store.Namespace)
	for _, o := range r.RemoveAll(ctx, store, ref) {
		record(host+" process", o)
	}
}

func (p *SubscriptionPipeline) connect(ctx context.Context, r *Runner, rep *Report, namespace string, record func(string, Outcome)) (Store, bool) {
	if p.Connect == nil {
		record(StageConnect, Outcome{Target: namespace, Result: Failed, Reason: "no WMI connector"})
		return nil, false
	}
	store, err := r.Connect(ctx, namespace, func(ctx context.Context) (Store, error) {
		return p.Connect(ctx, namespace)
	})
	if err != nil {
		logger.Errorf("%s 연결 실패: %v", namespace, err)
		rep.Diagnose(namespace, err.Error())
		record(StageConnect, failed(namespace, err))
		return nil, false
	}
	return store, true
}
