package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"announcement_relay/internal/domain"
)

const (
	uniqueViolation       pq.ErrorCode  = "23505"
	connectionExceptionCl pq.ErrorClass = "08"
)

// mapError classifies a database error into a *domain.StoreError.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	kind := domain.ErrStoreOther

	var pqErr *pq.Error
	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = domain.ErrNotFound
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		kind = domain.ErrUniqueViolation
	case errors.As(err, &pqErr) && pqErr.Code.Class() == connectionExceptionCl:
		kind = domain.ErrConnectionFailure
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.As(err, &netErr):
		kind = domain.ErrConnectionFailure
	}

	return domain.NewStoreError(op, kind, err)
}
