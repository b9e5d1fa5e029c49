// Package boardtest provides a re-usable test suite that can be executed
// against any type that implements jobboard.Board.
package boardtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/openstack-archive/poppy-sub002/jobboard"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of board-related tests that can be
// executed against any type that implements jobboard.Board.
type SuiteBase struct {
	b jobboard.Board
}

// SetBoard configures the test-suite to run all tests against b.
func (s *SuiteBase) SetBoard(b jobboard.Board) {
	s.b = b
}

func (s *SuiteBase) post(c *gc.C, name string) *jobboard.Job {
	job, err := s.b.Post(name, nil, map[string]interface{}{"factory": name})
	c.Assert(err, gc.IsNil)
	return job
}

// TestPostAndIterate verifies that posted jobs become visible to board
// iterations with their payload intact.
func (s *SuiteBase) TestPostAndIterate(c *gc.C) {
	book := &persistence.Logbook{Name: "create service"}
	details := map[string]interface{}{"factory": "create_service", "kwargs": map[string]interface{}{"project_id": "p1"}}

	job, err := s.b.Post("create service", book, details)
	c.Assert(err, gc.IsNil)
	c.Assert(job.ID.String(), gc.Not(gc.Equals), "00000000-0000-0000-0000-000000000000")
	c.Assert(job.BookID, gc.Equals, book.ID, gc.Commentf("expected the job to reference the logbook created at post time"))

	it, err := s.b.Jobs(jobboard.IterOptions{EnsureFresh: true})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(it.Close(), gc.IsNil) }()

	var found *jobboard.Job
	for it.Next() {
		if it.Job().ID == job.ID {
			found = it.Job()
		}
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(found, gc.NotNil, gc.Commentf("posted job did not appear in the board iteration"))
	c.Assert(found.Name, gc.Equals, "create service")
	c.Assert(found.Details["factory"], gc.Equals, "create_service")

	state, err := s.b.State(found)
	c.Assert(err, gc.IsNil)
	c.Assert(state, gc.Equals, jobboard.Unclaimed)
}

// TestClaimSemantics verifies the claim failure taxonomy.
func (s *SuiteBase) TestClaimSemantics(c *gc.C) {
	job := s.post(c, "claim-semantics")

	err := s.b.Claim(job, "conductor-1")
	c.Assert(err, gc.IsNil)

	err = s.b.Claim(job, "conductor-2")
	c.Assert(xerrors.Is(err, jobboard.ErrUnclaimable), gc.Equals, true, gc.Commentf("claiming an owned job should fail with ErrUnclaimable"))

	state, err := s.b.State(job)
	c.Assert(err, gc.IsNil)
	c.Assert(state, gc.Equals, jobboard.Claimed)

	owner, err := s.b.FindOwner(job)
	c.Assert(err, gc.IsNil)
	c.Assert(owner, gc.Equals, "conductor-1")

	c.Assert(s.b.Consume(job, "conductor-1"), gc.IsNil)
	err = s.b.Claim(job, "conductor-2")
	c.Assert(xerrors.Is(err, jobboard.ErrNotFound), gc.Equals, true, gc.Commentf("claiming a consumed job should fail with ErrNotFound"))
}

// TestConcurrentClaims verifies that at most one claimer can win a job even
// under concurrent claim attempts.
func (s *SuiteBase) TestConcurrentClaims(c *gc.C) {
	numClaimers := 16
	job := s.post(c, "contested")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	wg.Add(numClaimers)
	for i := 0; i < numClaimers; i++ {
		go func(id int) {
			defer wg.Done()
			who := fmt.Sprintf("conductor-%d", id)
			if err := s.b.Claim(job, who); err == nil {
				mu.Lock()
				winners = append(winners, who)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	c.Assert(winners, gc.HasLen, 1, gc.Commentf("exactly one concurrent claimer must win"))

	owner, err := s.b.FindOwner(job)
	c.Assert(err, gc.IsNil)
	c.Assert(owner, gc.Equals, winners[0])
}

// TestConsumePermanence verifies that consumed jobs never reappear.
func (s *SuiteBase) TestConsumePermanence(c *gc.C) {
	job := s.post(c, "consume-me")

	err := s.b.Consume(job, "conductor-1")
	c.Assert(xerrors.Is(err, jobboard.ErrNotOwner), gc.Equals, true, gc.Commentf("consuming an unclaimed job should fail with ErrNotOwner"))

	c.Assert(s.b.Claim(job, "conductor-1"), gc.IsNil)
	err = s.b.Consume(job, "conductor-2")
	c.Assert(xerrors.Is(err, jobboard.ErrNotOwner), gc.Equals, true, gc.Commentf("consuming another conductor's job should fail with ErrNotOwner"))

	c.Assert(s.b.Consume(job, "conductor-1"), gc.IsNil)

	it, err := s.b.Jobs(jobboard.IterOptions{EnsureFresh: true})
	c.Assert(err, gc.IsNil)
	for it.Next() {
		c.Assert(it.Job().ID, gc.Not(gc.Equals), job.ID, gc.Commentf("consumed job reappeared in a board iteration"))
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
}

// TestAbandonAndReclaim verifies that abandoned jobs can be reclaimed by a
// different owner.
func (s *SuiteBase) TestAbandonAndReclaim(c *gc.C) {
	job := s.post(c, "abandon-me")

	c.Assert(s.b.Claim(job, "conductor-1"), gc.IsNil)

	err := s.b.Abandon(job, "conductor-2")
	c.Assert(xerrors.Is(err, jobboard.ErrNotOwner), gc.Equals, true)

	c.Assert(s.b.Abandon(job, "conductor-1"), gc.IsNil)

	state, err := s.b.State(job)
	c.Assert(err, gc.IsNil)
	c.Assert(state, gc.Equals, jobboard.Unclaimed)

	c.Assert(s.b.Claim(job, "conductor-2"), gc.IsNil)
	owner, err := s.b.FindOwner(job)
	c.Assert(err, gc.IsNil)
	c.Assert(owner, gc.Equals, "conductor-2")
}

// TestTrash verifies that trashed jobs are permanently removed from the
// board.
func (s *SuiteBase) TestTrash(c *gc.C) {
	job := s.post(c, "trash-me")

	err := s.b.Trash(job, "conductor-1")
	c.Assert(xerrors.Is(err, jobboard.ErrNotOwner), gc.Equals, true)

	c.Assert(s.b.Claim(job, "conductor-1"), gc.IsNil)
	c.Assert(s.b.Trash(job, "conductor-1"), gc.IsNil)

	it, err := s.b.Jobs(jobboard.IterOptions{EnsureFresh: true})
	c.Assert(err, gc.IsNil)
	for it.Next() {
		c.Assert(it.Job().ID, gc.Not(gc.Equals), job.ID, gc.Commentf("trashed job reappeared in a board iteration"))
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
}

// TestOnlyUnclaimedFilter verifies the unclaimed-only traversal option.
func (s *SuiteBase) TestOnlyUnclaimedFilter(c *gc.C) {
	claimed := s.post(c, "claimed")
	free := s.post(c, "free")
	c.Assert(s.b.Claim(claimed, "conductor-1"), gc.IsNil)

	it, err := s.b.Jobs(jobboard.IterOptions{OnlyUnclaimed: true, EnsureFresh: true})
	c.Assert(err, gc.IsNil)

	var sawFree, sawClaimed bool
	for it.Next() {
		switch it.Job().ID {
		case free.ID:
			sawFree = true
		case claimed.ID:
			sawClaimed = true
		}
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(sawFree, gc.Equals, true)
	c.Assert(sawClaimed, gc.Equals, false, gc.Commentf("claimed job leaked through the unclaimed-only filter"))
}

// TestJobCount verifies the advisory job count.
func (s *SuiteBase) TestJobCount(c *gc.C) {
	before, err := s.b.JobCount()
	c.Assert(err, gc.IsNil)

	s.post(c, "count-me")
	after, err := s.b.JobCount()
	c.Assert(err, gc.IsNil)
	c.Assert(after, gc.Equals, before+1)
}

// TestWaitTimeout verifies that waiting on an idle board returns within the
// requested timeout with a possibly-empty iterator.
func (s *SuiteBase) TestWaitTimeout(c *gc.C) {
	startAt := time.Now()
	it, err := s.b.Wait(50 * time.Millisecond)
	c.Assert(err, gc.IsNil)
	c.Assert(it, gc.NotNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(time.Since(startAt) < 5*time.Second, gc.Equals, true, gc.Commentf("wait did not respect its timeout"))
}

// TestWaitBacksOffWhenAllJobsClaimed verifies that jobs held by other
// conductors do not short-circuit the wait. An idle conductor must block
// for its timeout instead of spinning against the backend while a peer's
// job is in flight.
func (s *SuiteBase) TestWaitBacksOffWhenAllJobsClaimed(c *gc.C) {
	job := s.post(c, "in-flight-elsewhere")
	c.Assert(s.b.Claim(job, "other-conductor"), gc.IsNil)

	startAt := time.Now()
	it, err := s.b.Wait(250 * time.Millisecond)
	c.Assert(err, gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(time.Since(startAt) >= 250*time.Millisecond, gc.Equals, true,
		gc.Commentf("wait returned immediately even though no job was claimable"))
}

// TestWaitShortCircuitsOnUnclaimedJob verifies that a claimable job makes
// Wait return without blocking for the full timeout.
func (s *SuiteBase) TestWaitShortCircuitsOnUnclaimedJob(c *gc.C) {
	job := s.post(c, "ready-to-claim")

	startAt := time.Now()
	it, err := s.b.Wait(30 * time.Second)
	c.Assert(err, gc.IsNil)

	var found bool
	for it.Next() {
		if it.Job().ID == job.ID {
			found = true
		}
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(found, gc.Equals, true)
	c.Assert(time.Since(startAt) < 5*time.Second, gc.Equals, true,
		gc.Commentf("wait blocked despite a claimable job being present"))
}

// TestRegisterEntity verifies that participant registration is accepted.
func (s *SuiteBase) TestRegisterEntity(c *gc.C) {
	c.Assert(s.b.RegisterEntity("conductor", "conductor-1@localhost:1234"), gc.IsNil)
	// Re-registration of the same identity must not fail.
	c.Assert(s.b.RegisterEntity("conductor", "conductor-1@localhost:1234"), gc.IsNil)
}
