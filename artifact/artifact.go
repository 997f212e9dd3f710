// Package artifact 설치된 지속성 아티팩트를 찾는 저장소별 키와 쿼리를 만든다.
package artifact

import (
	"fmt"
	"strings"
)

// Identifier 설치된 지속성 인스턴스 이름.
// 작업 스케줄러에서는 작업 이름, WMI 구독에서는 필터, 소비자, 타이머가 공유하는 접두어
type Identifier string

// Kind Descriptor가 가리키는 저장소 종류
type Kind int

const (
	KindTask Kind = iota
	KindSubscription
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindSubscription:
		return "subscription"
	case KindProcess:
		return "process"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Class WMI 클래스 이름
type Class string

const (
	EventFilter      Class = "__EventFilter"
	ScriptConsumer   Class = "ActiveScriptEventConsumer"
	FilterBinding    Class = "__FilterToConsumerBinding"
	TimerInstruction Class = "__IntervalTimerInstruction"
	Process          Class = "Win32_Process"
)

// 설치 프로그램이 식별자 뒤에 붙이는 접미어
const (
	FilterSuffix   = "_filter"
	ConsumerSuffix = "_consumer"
	TimerSuffix    = "_Timer"
)

const (
	DefaultTaskFolder            = `\`
	DefaultSubscriptionNamespace = `root\subscription`
	DefaultProcessNamespace      = `root\cimv2`
)

// Descriptor 저장소 식별 (작업 스케줄러 폴더 또는 네임스페이스 안의 WMI 클래스)
type Descriptor struct {
	Kind      Kind
	Folder    string
	Namespace string
	Class     Class
}

// TaskFolder 작업 스케줄러 폴더
func TaskFolder(path string) Descriptor {
	if path == "" {
		path = DefaultTaskFolder
	}
	return Descriptor{Kind: KindTask, Folder: path}
}

// Subscription 이벤트 구독 클래스 하나
func Subscription(namespace string, class Class) Descriptor {
	if namespace == "" {
		namespace = DefaultSubscriptionNamespace
	}
	return Descriptor{Kind: KindSubscription, Namespace: namespace, Class: class}
}

// Processes 실행 중인 프로세스 클래스
func Processes(namespace string) Descriptor {
	if namespace == "" {
		namespace = DefaultProcessNamespace
	}
	return Descriptor{Kind: KindProcess, Namespace: namespace, Class: Process}
}

func (d Descriptor) String() string {
	if d.Kind == KindTask {
		return "task folder " + d.Folder
	}
	return d.Namespace + ":" + string(d.Class)
}

// Reference 저장소 안의 객체 하나(Enumerate면 객체 묶음)의 주소
type Reference struct {
	Store Descriptor
	// Name 콘솔 출력용 객체 이름
	Name string
	// Key 객체 경로, 작업 경로 또는 WQL 쿼리
	Key string
	// Enumerate Key가 여러 객체에 걸릴 수 있는 쿼리임
	Enumerate bool
}

func (r Reference) String() string {
	return r.Key
}

// Resolve 저장소 d 안에서 id의 Reference 계산. I/O 없음
func Resolve(id Identifier, d Descriptor) Reference {
	name := string(id)
	switch d.Kind {
	case KindTask:
		return Reference{Store: d, Name: name, Key: taskPath(d.Folder, name)}
	case KindProcess:
		return Reference{
			Store:     d,
			Name:      name,
			Key:       fmt.Sprintf("SELECT * FROM %s WHERE Name=%s", d.Class, quote(name, '\'')),
			Enumerate: true,
		}
	}
	switch d.Class {
	case EventFilter:
		return objectRef(d, "Name", name+FilterSuffix)
	case ScriptConsumer:
		return objectRef(d, "Name", name+ConsumerSuffix)
	case TimerInstruction:
		return objectRef(d, "TimerID", name+TimerSuffix)
	case FilterBinding:
		// 바인딩은 이름이 없으므로 가리키는 필터로 찾는다
		filter := Resolve(id, Subscription(d.Namespace, EventFilter))
		return Reference{
			Store:     d,
			Name:      string(d.Class),
			Key:       fmt.Sprintf("SELECT * FROM %s WHERE Filter=%s", d.Class, quote(filter.Key, '"')),
			Enumerate: true,
		}
	}
	return objectRef(d, "Name", name)
}

func objectRef(d Descriptor, property, value string) Reference {
	return Reference{
		Store: d,
		Name:  value,
		Key:   fmt.Sprintf("%s.%s=%s", d.Class, property, quote(value, '\'')),
	}
}

func taskPath(folder, name string) string {
	if folder == "" {
		folder = DefaultTaskFolder
	}
	if strings.HasSuffix(folder, `\`) {
		return folder + name
	}
	return folder + `\` + name
}

// quote s를 q로 감싸고 WMI 객체 경로와 WQL 문자열 규칙대로 백슬래시와 q를 이스케이프
func quote(s string, q byte) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == q {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte(q)
	return b.String()
}
