package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/poiesic/vectorload/core"
)

// MySQL and TiDB error numbers that succeed on retry.
var transientMySQL = map[uint16]struct{}{
	1040: {}, // too many connections
	1205: {}, // lock wait timeout
	1213: {}, // deadlock
	2006: {}, // server has gone away
	2013: {}, // lost connection during query
	8002: {}, // TiDB: write conflict under SELECT FOR UPDATE
	8022: {}, // TiDB: transaction commit failed, retry
	9007: {}, // TiDB: write conflict
}

// Postgres SQLSTATEs that succeed on retry. Class 08 is matched by prefix.
var transientPostgres = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (statement timeout)
	"57P01": {}, // admin_shutdown
}

// Classify wraps err with core.ErrTransientStorage or core.ErrPermanentStorage.
// Errors already carrying a storage kind and context.Canceled pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrTransientStorage) || errors.Is(err, core.ErrPermanentStorage) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", core.ErrTransientStorage, err)
	}
	return fmt.Errorf("%w: %w", core.ErrPermanentStorage, err)
}

func isTransient(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := transientMySQL[myErr.Number]
		return ok
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := transientPostgres[pgErr.Code]
		return ok
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrInvalidField):
		return false
	case errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
