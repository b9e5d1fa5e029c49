package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/openstack-archive/poppy-sub002/persistence/persistencetest"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(PostgresStoreTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type PostgresStoreTestSuite struct {
	persistencetest.SuiteBase
	db *sql.DB
}

func (s *PostgresStoreTestSuite) SetUpSuite(c *gc.C) {
	dsn := os.Getenv("POPPY_PERSISTENCE_DSN")
	if dsn == "" {
		c.Skip("Missing POPPY_PERSISTENCE_DSN envvar; skipping postgres-backed persistence test suite")
	}

	store, err := NewPostgresStore(dsn)
	c.Assert(err, gc.IsNil)
	s.SetStore(store)
	s.db = store.db
}

func (s *PostgresStoreTestSuite) SetUpTest(c *gc.C) {
	s.flushDB(c)
}

func (s *PostgresStoreTestSuite) TearDownSuite(c *gc.C) {
	if s.db != nil {
		s.flushDB(c)
		c.Assert(s.db.Close(), gc.IsNil)
	}
}

func (s *PostgresStoreTestSuite) flushDB(c *gc.C) {
	_, err := s.db.Exec("DELETE FROM flow_details")
	c.Assert(err, gc.IsNil)
	_, err = s.db.Exec("DELETE FROM logbooks")
	c.Assert(err, gc.IsNil)
}
