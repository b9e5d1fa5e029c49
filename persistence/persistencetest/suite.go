// Package persistencetest provides a re-usable test suite that can be
// executed against any type that implements persistence.Store.
package persistencetest

import (
	"github.com/google/uuid"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of store-related tests that can be
// executed against any type that implements persistence.Store.
type SuiteBase struct {
	s persistence.Store
}

// SetStore configures the test-suite to run all tests against s.
func (s *SuiteBase) SetStore(store persistence.Store) {
	s.s = store
}

// TestLogbookRoundTrip verifies the logbook save/lookup logic.
func (s *SuiteBase) TestLogbookRoundTrip(c *gc.C) {
	book := &persistence.Logbook{Name: "provision service"}
	err := s.s.SaveLogbook(book)
	c.Assert(err, gc.IsNil)
	c.Assert(book.ID, gc.Not(gc.Equals), uuid.Nil, gc.Commentf("expected an ID to be assigned to the new logbook"))

	stored, err := s.s.GetLogbook(book.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Name, gc.Equals, book.Name)

	// Re-save with a new name; the ID must be retained.
	book.Name = "provision service (renamed)"
	err = s.s.SaveLogbook(book)
	c.Assert(err, gc.IsNil)

	stored, err = s.s.GetLogbook(book.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Name, gc.Equals, "provision service (renamed)")

	// Lookup by unknown ID.
	_, err = s.s.GetLogbook(uuid.New())
	c.Assert(xerrors.Is(err, persistence.ErrNotFound), gc.Equals, true)
}

// TestFlowDetailRoundTrip verifies the flow-detail save/lookup logic.
func (s *SuiteBase) TestFlowDetailRoundTrip(c *gc.C) {
	book := &persistence.Logbook{Name: "provision service"}
	c.Assert(s.s.SaveLogbook(book), gc.IsNil)

	detail := &persistence.FlowDetail{
		BookID:  book.ID,
		Name:    "create-service",
		State:   persistence.StateRunning,
		Results: map[string]interface{}{"service_id": "abc"},
	}
	err := s.s.SaveFlowDetail(detail)
	c.Assert(err, gc.IsNil)
	c.Assert(detail.ID, gc.Not(gc.Equals), uuid.Nil)

	detail.State = persistence.StateSuccess
	detail.Results["dns"] = "ok"
	c.Assert(s.s.SaveFlowDetail(detail), gc.IsNil)

	stored, err := s.s.GetFlowDetail(detail.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.State, gc.Equals, persistence.StateSuccess)
	c.Assert(stored.Results, gc.DeepEquals, map[string]interface{}{
		"service_id": "abc",
		"dns":        "ok",
	})

	_, err = s.s.GetFlowDetail(uuid.New())
	c.Assert(xerrors.Is(err, persistence.ErrNotFound), gc.Equals, true)
}

// TestListFlowDetails verifies that details are scoped to their logbook.
func (s *SuiteBase) TestListFlowDetails(c *gc.C) {
	book1 := &persistence.Logbook{Name: "book-1"}
	book2 := &persistence.Logbook{Name: "book-2"}
	c.Assert(s.s.SaveLogbook(book1), gc.IsNil)
	c.Assert(s.s.SaveLogbook(book2), gc.IsNil)

	for i := 0; i < 3; i++ {
		detail := &persistence.FlowDetail{BookID: book1.ID, Name: "flow", State: persistence.StatePending}
		c.Assert(s.s.SaveFlowDetail(detail), gc.IsNil)
	}
	other := &persistence.FlowDetail{BookID: book2.ID, Name: "flow", State: persistence.StatePending}
	c.Assert(s.s.SaveFlowDetail(other), gc.IsNil)

	details, err := s.s.ListFlowDetails(book1.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(details, gc.HasLen, 3)
	for _, detail := range details {
		c.Assert(detail.BookID, gc.Equals, book1.ID)
	}
}

// TestDeleteLogbook verifies that deleting a logbook removes its details.
func (s *SuiteBase) TestDeleteLogbook(c *gc.C) {
	book := &persistence.Logbook{Name: "doomed"}
	c.Assert(s.s.SaveLogbook(book), gc.IsNil)

	detail := &persistence.FlowDetail{BookID: book.ID, Name: "flow", State: persistence.StatePending}
	c.Assert(s.s.SaveFlowDetail(detail), gc.IsNil)

	c.Assert(s.s.DeleteLogbook(book.ID), gc.IsNil)

	_, err := s.s.GetLogbook(book.ID)
	c.Assert(xerrors.Is(err, persistence.ErrNotFound), gc.Equals, true)
	_, err = s.s.GetFlowDetail(detail.ID)
	c.Assert(xerrors.Is(err, persistence.ErrNotFound), gc.Equals, true)

	err = s.s.DeleteLogbook(book.ID)
	c.Assert(xerrors.Is(err, persistence.ErrNotFound), gc.Equals, true, gc.Commentf("deleting a missing logbook should report not-found"))
}
