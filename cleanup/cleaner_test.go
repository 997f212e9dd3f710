package cleanup_test

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"persistclean/cleanup"
)

type cleanerSuite struct {
	host *host
	out  bytes.Buffer
}

var _ = gc.Suite(&cleanerSuite{})

func (s *cleanerSuite) SetUpTest(c *gc.C) {
	s.host = newHost()
	s.out.Reset()
}

func (s *cleanerSuite) run() cleanup.Summary {
	return s.host.cleaner(cleanup.NewPrinter(&s.out)).Run(context.Background())
}

func (s *cleanerSuite) TestFullCleanup(c *gc.C) {
	s.host.infect()

	summary := s.run()
	// 작업, 바인딩, 필터, 소비자, 타이머, 프로세스 둘
	c.Check(summary.Deleted, gc.Equals, 7)
	c.Check(summary.Failed, gc.Equals, 0)
	c.Check(summary.Degraded, jc.IsFalse)
	c.Check(summary.AlreadyClean, jc.IsFalse)
	c.Check(summary.ExitCode(), gc.Equals, 0)
	c.Check(s.host.command.paths, gc.HasLen, 0)
	c.Check(s.host.tasks.closed, gc.Equals, 1)
	c.Check(s.host.subscription.closed, gc.Equals, 1)
	c.Check(s.host.processes.closed, gc.Equals, 1)
	c.Check(s.out.String(), jc.Contains, "[+] Deleted scheduled task: GIMCTestBSI\n")
	c.Check(s.out.String(), jc.Contains, "[SUCCESS] Removed 7 artifact(s)")
}

func (s *cleanerSuite) TestIdempotent(c *gc.C) {
	s.host.infect()
	s.host.removeErr = os.ErrNotExist
	first := s.run()
	c.Check(first.Deleted, gc.Equals, 7)

	for i := 0; i < 2; i++ {
		s.out.Reset()
		again := s.run()
		c.Check(again.Deleted, gc.Equals, 0)
		c.Check(again.Failed, gc.Equals, 0)
		c.Check(again.ExitCode(), gc.Equals, 0)
		c.Check(again.AlreadyClean, jc.IsTrue)
		c.Check(s.out.String(), jc.Contains, "[INFO] No WMI subscription artifacts found.")
	}
}

func (s *cleanerSuite) TestEveryStepPrintsOneLine(c *gc.C) {
	s.host.removeErr = os.ErrNotExist
	summary := s.run()

	c.Check(summary.Total(), gc.Equals, 6)
	var steps int
	for _, line := range strings.Split(s.out.String(), "\n") {
		if strings.HasPrefix(line, "[+]") || strings.HasPrefix(line, "[-]") {
			steps++
		}
	}
	c.Check(steps, gc.Equals, 6)
}

func (s *cleanerSuite) TestBindingBeforeFilter(c *gc.C) {
	for i, bindingErr := range []error{nil, errors.New("binding broken")} {
		c.Logf("test %d", i)
		s.SetUpTest(c)
		s.host.infect()
		if bindingErr != nil {
			s.host.subscription.enumerateErr[bindingKey] = bindingErr
		}
		s.run()

		binding := s.host.log.index("enumerate " + bindingKey)
		filter := s.host.log.index("resolve " + filterKey)
		c.Assert(binding, jc.GreaterThan, -1)
		c.Assert(filter, jc.GreaterThan, -1)
		c.Check(binding < filter, jc.IsTrue)
	}
}

func (s *cleanerSuite) TestStageOrder(c *gc.C) {
	s.host.infect()
	s.run()

	var order []string
	for _, call := range s.host.log.calls {
		if strings.HasPrefix(call, "resolve ") || strings.HasPrefix(call, "enumerate ") {
			order = append(order, call)
		}
	}
	c.Check(order, jc.DeepEquals, []string{
		"resolve " + taskKey,
		"enumerate " + bindingKey,
		"resolve " + filterKey,
		"resolve " + consumerKey,
		"resolve " + timerKey,
		"enumerate " + processKey,
	})
}

func (s *cleanerSuite) TestFilterFailureIsIsolated(c *gc.C) {
	s.host.infect()
	s.host.subscription.deleteErr[filterKey] = errors.New("Generic failure ")

	summary := s.run()
	c.Check(summary.Failed, gc.Equals, 1)
	c.Check(summary.Deleted, gc.Equals, 6)
	c.Check(summary.Degraded, jc.IsTrue)
	c.Check(summary.ExitCode(), gc.Equals, 1)

	stages := make(map[string]cleanup.Result)
	for _, o := range summary.Outcomes {
		stages[o.Stage] = o.Result
	}
	c.Check(stages["__EventFilter"], gc.Equals, cleanup.Failed)
	c.Check(stages["ActiveScriptEventConsumer"], gc.Equals, cleanup.Deleted)
	c.Check(stages["__IntervalTimerInstruction"], gc.Equals, cleanup.Deleted)
	c.Check(stages["scrcons.exe process"], gc.Equals, cleanup.Deleted)
	c.Check(s.out.String(), jc.Contains,
		"[-] Warning: could not delete __EventFilter: GIMCTestBSI_filter: Generic failure \n")
	c.Check(s.out.String(), jc.Contains, "[WARNING] 1 item(s) could not be deleted.")
}

func (s *cleanerSuite) TestFallbackOnUnavailableScheduler(c *gc.C) {
	s.host.infect()
	s.host.taskConnectErr = cleanup.Unavailable(errors.New("class not registered"), "connect")

	summary := s.run()
	c.Check(s.host.command.paths, jc.DeepEquals, []string{taskKey})
	c.Check(s.host.log.index("resolve "+taskKey), gc.Equals, -1)
	c.Check(summary.Pipelines[cleanup.PipelineTask].Deleted, gc.Equals, 1)
	c.Check(s.out.String(), jc.Contains, "[ERROR] Task Scheduler API failed")
	c.Check(s.out.String(), jc.Contains, "[INFO] Trying command-line method...")
}

func (s *cleanerSuite) TestFallbackResultDecides(c *gc.C) {
	s.host.taskConnectErr = cleanup.Unavailable(errors.New("service stopped"), "connect")
	s.host.command.err = errors.New("ERROR: Access is denied.")

	summary := s.run()
	c.Check(s.host.command.paths, gc.HasLen, 1)
	c.Check(summary.Pipelines[cleanup.PipelineTask].Failed, gc.Equals, 1)
	c.Check(summary.Outcomes[0].Reason, gc.Equals, "ERROR: Access is denied.")
	c.Check(summary.ExitCode(), gc.Equals, 1)
}

func (s *cleanerSuite) TestFallbackTaskMissing(c *gc.C) {
	s.host.taskConnectErr = cleanup.Unavailable(errors.New("service stopped"), "connect")
	s.host.command.err = errors.NotFoundf("task %s", taskKey)

	summary := s.run()
	c.Check(summary.Pipelines[cleanup.PipelineTask].NotFound, gc.Equals, 1)
	c.Check(summary.ExitCode(), gc.Equals, 0)
}

func (s *cleanerSuite) TestNoFallbackWhenTaskMissing(c *gc.C) {
	summary := s.run()
	c.Check(s.host.command.paths, gc.HasLen, 0)
	c.Check(summary.Pipelines[cleanup.PipelineTask].NotFound, gc.Equals, 1)
}

func (s *cleanerSuite) TestNoFallbackOnOtherConnectError(c *gc.C) {
	s.host.taskConnectErr = errors.New("bad folder path")

	summary := s.run()
	c.Check(s.host.command.paths, gc.HasLen, 0)
	c.Check(summary.Pipelines[cleanup.PipelineTask].Failed, gc.Equals, 1)
	// 구독 파이프라인은 계속 실행됨
	c.Check(s.host.log.index("enumerate "+bindingKey), jc.GreaterThan, -1)
}

func (s *cleanerSuite) TestTempFileFailureIsNotCritical(c *gc.C) {
	s.host.removeErr = errors.New("sharing violation")

	summary := s.run()
	c.Check(s.host.removed, jc.DeepEquals, []string{`C:\Temp\gimc_payload.js`})
	c.Check(summary.Failed, gc.Equals, 0)
	c.Check(summary.ExitCode(), gc.Equals, 0)
	c.Check(s.out.String(), jc.Contains, "[-] Could not delete temporary script")
}

func (s *cleanerSuite) TestSubscriptionNamespaceUnavailable(c *gc.C) {
	s.host.infect()
	s.host.wmiConnectErr[`root\subscription`] = cleanup.Unavailable(errors.New("access denied"), "connect")

	summary := s.run()
	sub := summary.Pipelines[cleanup.PipelineSubscription]
	c.Check(sub.Failed, gc.Equals, 1)
	// 소비자 호스트 프로세스는 그래도 종료됨
	c.Check(sub.Deleted, gc.Equals, 2)
	c.Check(summary.Pipelines[cleanup.PipelineTask].Deleted, gc.Equals, 1)
	c.Check(s.out.String(), jc.Contains, `[ERROR] Could not connect to root\subscription`)
}

func (s *cleanerSuite) TestTempFilePanicIsNotCritical(c *gc.C) {
	s.host.infect()
	cl := s.host.cleaner(cleanup.NewPrinter(&s.out))
	cl.Tasks.RemoveFile = func(string) error { panic("disk gone") }

	summary := cl.Run(context.Background())
	c.Check(summary.Pipelines[cleanup.PipelineTask].Deleted, gc.Equals, 1)
	c.Check(summary.Failed, gc.Equals, 0)
	c.Check(summary.ExitCode(), gc.Equals, 0)
	c.Check(summary.Pipelines[cleanup.PipelineSubscription].Deleted, gc.Equals, 6)
	c.Check(s.out.String(), jc.Contains, "[-] Could not delete temporary script")
	c.Check(s.out.String(), gc.Not(jc.Contains), "aborted")
}

func (s *cleanerSuite) TestPanickingPipelineIsIsolated(c *gc.C) {
	s.host.infect()
	s.host.tasks.closePanic = "handle table corrupt"

	summary := s.run()
	task := summary.Pipelines[cleanup.PipelineTask]
	c.Check(task.Failed, gc.Equals, 1)
	c.Check(summary.Outcomes[0].Stage, gc.Equals, cleanup.StagePipeline)
	c.Check(summary.Pipelines[cleanup.PipelineSubscription].Deleted, gc.Equals, 6)
	c.Check(summary.ExitCode(), gc.Equals, 1)
	c.Check(s.out.String(), jc.Contains, "[ERROR] task pipeline aborted: handle table corrupt")
}
