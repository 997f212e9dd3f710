package cleanup

import (
	"fmt"
	"io"
)

// Printer 단계별 콘솔 출력
type Printer struct {
	w io.Writer
}

// NewPrinter w에 쓰는 Printer 반환
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) line(prefix, format string, args ...interface{}) {
	if p == nil || p.w == nil {
		return
	}
	msg := fmtArgs(format, args...)
	if prefix == "" {
		fmt.Fprintln(p.w, msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", prefix, msg)
}

func (p *Printer) Plain(format string, args ...interface{})   { p.line("", format, args...) }
func (p *Printer) Success(format string, args ...interface{}) { p.line("[+]", format, args...) }
func (p *Printer) Miss(format string, args ...interface{})    { p.line("[-]", format, args...) }
func (p *Printer) Error(format string, args ...interface{})   { p.line("[ERROR]", format, args...) }
func (p *Printer) Warning(format string, args ...interface{}) { p.line("[WARNING]", format, args...) }
func (p *Printer) Info(format string, args ...interface{})    { p.line("[INFO]", format, args...) }

// Outcome 단계 하나에 대한 한 줄 출력
func (p *Printer) Outcome(o Outcome) {
	what := o.Stage
	if o.Target != "" && o.Target != o.Stage {
		what += ": " + o.Target
	}
	switch o.Result {
	case Deleted:
		p.Success("Deleted %s", what)
	case NotFound:
		p.Miss("Not found or already deleted: %s", what)
	default:
		if o.Stage == StageConnect {
			p.Error("Could not connect to %s: %s", o.Target, o.Reason)
			return
		}
		p.Miss("Warning: could not delete %s: %s", what, o.Reason)
	}
}

// Summary 실행 종료 요약 출력
func (p *Printer) Summary(s Summary) {
	p.Plain("")
	p.Plain("=== Cleanup Summary ===")
	if s.Deleted > 0 {
		p.Plain("[SUCCESS] Removed %d artifact(s)", s.Deleted)
	}
	if s.AlreadyClean {
		p.Info("No WMI subscription artifacts found. Persistence may have already been removed.")
	}
	if s.Degraded {
		p.Warning("%d item(s) could not be deleted. You may need administrator privileges.", s.Failed)
	}
	p.Plain("Cleanup complete: %d deleted, %d not found, %d failed", s.Deleted, s.NotFound, s.Failed)
}
