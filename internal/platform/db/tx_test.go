package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txStub struct {
	pgx.Tx
	committed   bool
	rolledBack  bool
	commitErr   error
	rollbackErr error
}

func (t *txStub) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *txStub) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return t.rollbackErr
}

type beginner struct {
	tx   *txStub
	opts pgx.TxOptions
	err  error
}

func (b *beginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &beginner{tx: &txStub{}}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &beginner{tx: &txStub{}}
	boom := errors.New("duplicate email")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.tx.rolledBack)
	assert.False(t, b.tx.committed)
}

func TestWithTxReportsFailedRollback(t *testing.T) {
	b := &beginner{tx: &txStub{rollbackErr: errors.New("conn closed")}}
	boom := errors.New("duplicate email")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "rollback: conn closed")
}

func TestWithTxBeginAndCommitErrors(t *testing.T) {
	err := WithTx(context.Background(), &beginner{err: errors.New("pool closed")}, func(pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorContains(t, err, "begin tx")

	b := &beginner{tx: &txStub{commitErr: errors.New("serialization failure")}}
	err = WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	assert.ErrorContains(t, err, "commit tx")
}
