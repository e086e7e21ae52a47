package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	"github.com/evermart/eventflow/infra/postgres"
	"github.com/evermart/eventflow/testutil"
)

type ResilientTransactorSuite struct {
	testutil.DBIntegrationSuite
	db *postgres.DB
}

func TestResilientTransactorSuite(t *testing.T) {
	suite.Run(t, new(ResilientTransactorSuite))
}

func (s *ResilientTransactorSuite) SetupTest() {
	s.db = &postgres.DB{Pool: s.Pool}
}

func (s *ResilientTransactorSuite) TestRetriesWholeTransactionOnTransientFault() {
	// GIVEN an action that hits a transient fault twice before succeeding
	transactor := postgres.NewResilientTransactor(s.db, postgres.WithMaxElapsedTime(10*time.Second))
	attempts := 0

	// WHEN
	err := transactor.WithTransaction(context.Background(), func(txCtx context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"} // serialization_failure
		}
		return nil
	})

	// THEN the whole transaction was re-run from Begin each time
	s.NoError(err)
	s.Equal(3, attempts)
}

func (s *ResilientTransactorSuite) TestBusinessErrorIsNotRetried() {
	transactor := postgres.NewResilientTransactor(s.db)
	boom := errors.New("stock below zero")
	attempts := 0

	err := transactor.WithTransaction(context.Background(), func(txCtx context.Context) error {
		attempts++
		return boom
	})

	s.ErrorIs(err, boom)
	s.Equal(1, attempts)
}

func (s *ResilientTransactorSuite) TestExhaustedRetriesSurfaceAsSuch() {
	// GIVEN an action that never stops failing transiently
	transactor := postgres.NewResilientTransactor(s.db, postgres.WithMaxElapsedTime(500*time.Millisecond))

	// WHEN
	err := transactor.WithTransaction(context.Background(), func(txCtx context.Context) error {
		return &pgconn.PgError{Code: "40001"}
	})

	// THEN
	s.ErrorIs(err, postgres.ErrRetriesExhausted)
}
