package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/sogos/pixelpipe/internal/domain/repository"
)

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, mapError(nil))
}

func TestMapErrorNoRows(t *testing.T) {
	err := mapError(sql.ErrNoRows)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMapErrorSQLStateClass08(t *testing.T) {
	for _, code := range []string{"08000", "08003", "08006"} {
		err := mapError(&pq.Error{Code: pq.ErrorCode(code), Message: "connection dropped"})
		assert.ErrorIs(t, err, repository.ErrConnection, "code %s", code)
	}
}

func TestMapErrorOtherSQLState(t *testing.T) {
	err := mapError(&pq.Error{Code: "23505", Message: "duplicate key"})
	assert.ErrorIs(t, err, repository.ErrDatabase)
	assert.NotErrorIs(t, err, repository.ErrConnection)
}

func TestMapErrorBadConn(t *testing.T) {
	err := mapError(driver.ErrBadConn)
	assert.ErrorIs(t, err, repository.ErrConnection)
}

func TestMapErrorNetError(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	err := mapError(fmt.Errorf("query failed: %w", netErr))
	assert.ErrorIs(t, err, repository.ErrConnection)
}

func TestMapErrorFallback(t *testing.T) {
	err := mapError(errors.New("something odd"))
	assert.ErrorIs(t, err, repository.ErrDatabase)
}
