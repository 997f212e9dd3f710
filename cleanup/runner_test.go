package cleanup_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"persistclean/artifact"
	"persistclean/cleanup"
)

type runnerSuite struct {
	log   *callLog
	store *fakeStore
}

var _ = gc.Suite(&runnerSuite{})

func (s *runnerSuite) SetUpTest(c *gc.C) {
	s.log = &callLog{}
	s.store = newFakeStore(s.log)
}

func filterRef() artifact.Reference {
	return artifact.Resolve("GIMCTestBSI", artifact.Subscription("", artifact.EventFilter))
}

func bindingRef() artifact.Reference {
	return artifact.Resolve("GIMCTestBSI", artifact.Subscription("", artifact.FilterBinding))
}

func (s *runnerSuite) TestRemoveDeleted(c *gc.C) {
	s.store.objects[filterKey] = true

	o := (&cleanup.Runner{}).Remove(context.Background(), s.store, filterRef())
	c.Check(o.Result, gc.Equals, cleanup.Deleted)
	c.Check(o.Target, gc.Equals, "GIMCTestBSI_filter")
	c.Check(s.log.calls, jc.DeepEquals, []string{"resolve " + filterKey, "delete " + filterKey})
	c.Check(s.store.released, gc.Equals, 1)
}

func (s *runnerSuite) TestRemoveMissing(c *gc.C) {
	o := (&cleanup.Runner{}).Remove(context.Background(), s.store, filterRef())
	c.Check(o.Result, gc.Equals, cleanup.NotFound)
	c.Check(s.log.calls, jc.DeepEquals, []string{"resolve " + filterKey})
}

func (s *runnerSuite) TestRemoveFailureKeepsStoreText(c *gc.C) {
	s.store.objects[filterKey] = true
	s.store.deleteErr[filterKey] = errors.New("Access denied ")

	o := (&cleanup.Runner{}).Remove(context.Background(), s.store, filterRef())
	c.Check(o.Result, gc.Equals, cleanup.Failed)
	c.Check(o.Reason, gc.Equals, "Access denied ")
	c.Check(s.store.released, gc.Equals, 1)
}

func (s *runnerSuite) TestRemoveRecoversPanic(c *gc.C) {
	s.store.panicOn = filterKey

	o := (&cleanup.Runner{}).Remove(context.Background(), s.store, filterRef())
	c.Check(o.Result, gc.Equals, cleanup.Failed)
	c.Check(o.Reason, gc.Matches, ".*panic: boom")
}

func (s *runnerSuite) TestRemoveAllNoMatches(c *gc.C) {
	outcomes := (&cleanup.Runner{}).RemoveAll(context.Background(), s.store, bindingRef())
	c.Assert(outcomes, gc.HasLen, 1)
	c.Check(outcomes[0].Result, gc.Equals, cleanup.NotFound)
}

func (s *runnerSuite) TestRemoveAllEveryMatch(c *gc.C) {
	s.store.matches[bindingKey] = []string{"b1", "b2", "b3"}
	s.store.deleteErr["b2"] = errors.New("locked")

	outcomes := (&cleanup.Runner{}).RemoveAll(context.Background(), s.store, bindingRef())
	c.Assert(outcomes, gc.HasLen, 3)
	c.Check(outcomes[0].Result, gc.Equals, cleanup.Deleted)
	c.Check(outcomes[1].Result, gc.Equals, cleanup.Failed)
	c.Check(outcomes[1].Reason, gc.Equals, "locked")
	c.Check(outcomes[2].Result, gc.Equals, cleanup.Deleted)
	c.Check(s.store.released, gc.Equals, 3)
}

func (s *runnerSuite) TestRemoveAllEnumerateFails(c *gc.C) {
	s.store.enumerateErr[bindingKey] = errors.New("Invalid query ")

	outcomes := (&cleanup.Runner{}).RemoveAll(context.Background(), s.store, bindingRef())
	c.Assert(outcomes, gc.HasLen, 1)
	c.Check(outcomes[0].Result, gc.Equals, cleanup.Failed)
	c.Check(outcomes[0].Reason, gc.Equals, "Invalid query ")
}

func (s *runnerSuite) TestTimeout(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	runner := &cleanup.Runner{Clock: clk, Timeout: 10 * time.Second}
	s.store.objects[filterKey] = true
	s.store.block = make(chan struct{})
	defer close(s.store.block)

	done := make(chan cleanup.Outcome, 1)
	go func() {
		done <- runner.Remove(context.Background(), s.store, filterRef())
	}()
	c.Assert(clk.WaitAdvance(10*time.Second, time.Second, 1), jc.ErrorIsNil)

	select {
	case o := <-done:
		c.Check(o.Result, gc.Equals, cleanup.Failed)
		c.Check(o.Reason, gc.Matches, ".*no answer after 10s.*")
	case <-time.After(5 * time.Second):
		c.Fatalf("remove did not time out")
	}
}

func (s *runnerSuite) TestConnectError(c *gc.C) {
	_, err := (&cleanup.Runner{}).Connect(context.Background(), "x", func(context.Context) (cleanup.Store, error) {
		return nil, cleanup.Unavailable(errors.New("RPC server is unavailable"), "connect %s", "x")
	})
	c.Check(errors.Is(err, cleanup.ErrUnavailable), jc.IsTrue)
	c.Check(err, gc.ErrorMatches, ".*RPC server is unavailable.*")
}

// closeWatcher 닫힐 때 신호를 보내는 저장소
type closeWatcher struct {
	*fakeStore
	closed chan struct{}
}

func (w *closeWatcher) Close() error {
	close(w.closed)
	return nil
}

func (s *runnerSuite) TestConnectAfterTimeoutIsClosed(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	runner := &cleanup.Runner{Clock: clk, Timeout: time.Second}
	store := &closeWatcher{fakeStore: s.store, closed: make(chan struct{})}
	gate := make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := runner.Connect(context.Background(), "tasks", func(context.Context) (cleanup.Store, error) {
			<-gate
			return store, nil
		})
		errc <- err
	}()
	c.Assert(clk.WaitAdvance(time.Second, time.Second, 1), jc.ErrorIsNil)

	select {
	case err := <-errc:
		c.Check(errors.Is(err, errors.Timeout), jc.IsTrue)
		c.Check(err, gc.ErrorMatches, "connect tasks: no answer after 1s.*")
	case <-time.After(5 * time.Second):
		c.Fatalf("connect did not time out")
	}

	close(gate)
	select {
	case <-store.closed:
	case <-time.After(5 * time.Second):
		c.Fatalf("store connected after the timeout was never closed")
	}
}

// signalHandle 해제될 때 신호를 보내는 핸들
type signalHandle struct {
	released chan struct{}
}

func (h *signalHandle) String() string { return "late" }

func (h *signalHandle) Release() {
	select {
	case <-h.released:
	default:
		close(h.released)
	}
}

// gatedResolver gate가 열릴 때까지 context를 무시하고 조회를 붙잡아 두는 저장소
type gatedResolver struct {
	*fakeStore
	gate   chan struct{}
	handle *signalHandle
}

func (g *gatedResolver) Resolve(ctx context.Context, ref artifact.Reference) (cleanup.Handle, error) {
	<-g.gate
	return g.handle, nil
}

func (s *runnerSuite) TestHandleAfterTimeoutIsReleased(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	runner := &cleanup.Runner{Clock: clk, Timeout: time.Second}
	store := &gatedResolver{
		fakeStore: s.store,
		gate:      make(chan struct{}),
		handle:    &signalHandle{released: make(chan struct{})},
	}

	done := make(chan cleanup.Outcome, 1)
	go func() {
		done <- runner.Remove(context.Background(), store, filterRef())
	}()
	c.Assert(clk.WaitAdvance(time.Second, time.Second, 1), jc.ErrorIsNil)

	select {
	case o := <-done:
		c.Check(o.Result, gc.Equals, cleanup.Failed)
	case <-time.After(5 * time.Second):
		c.Fatalf("remove did not time out")
	}

	close(store.gate)
	select {
	case <-store.handle.released:
	case <-time.After(5 * time.Second):
		c.Fatalf("handle resolved after the timeout was never released")
	}
	c.Check(s.log.calls, gc.HasLen, 0)
}
