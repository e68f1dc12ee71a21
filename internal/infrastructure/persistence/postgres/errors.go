package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/sogos/pixelpipe/internal/domain/repository"
)

// mapError translates storage-layer failures into the repository error
// kinds. Connection faults (SQLSTATE class 08 and socket-level errors) are
// distinguished because the scheduler reconnects on them; everything else
// from the driver becomes a plain database error.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if strings.HasPrefix(string(pqErr.Code), "08") {
			return fmt.Errorf("%w: %s", repository.ErrConnection, pqErr.Message)
		}
		return fmt.Errorf("%w: %s", repository.ErrDatabase, pqErr.Message)
	}

	if isConnectionFailure(err) {
		return fmt.Errorf("%w: %v", repository.ErrConnection, err)
	}

	return fmt.Errorf("%w: %v", repository.ErrDatabase, err)
}

// isConnectionFailure catches the faults the driver reports without an
// SQLSTATE: dead sockets, refused dials, timed-out dials.
func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
