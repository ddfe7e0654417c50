package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/poiesic/vectorload/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"tidb write conflict", &mysql.MySQLError{Number: 9007}, true},
		{"mysql gone away", &mysql.MySQLError{Number: 2006}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"mysql access denied", &mysql.MySQLError{Number: 1045}, false},
		{"mysql unknown column", &mysql.MySQLError{Number: 1054}, false},
		{"mysql invalid conn", mysql.ErrInvalidConn, true},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"pg bad vector", &pgconn.PgError{Code: "22000"}, false},
		{"bad conn", driver.ErrBadConn, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"deadline", context.DeadlineExceeded, true},
		{"gorm duplicate", gorm.ErrDuplicatedKey, false},
		{"plain", errors.New("syntax error"), false},
		{"wrapped deadlock", fmt.Errorf("upsert: %w", &mysql.MySQLError{Number: 1213}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.err)
			if tt.transient {
				assert.ErrorIs(t, got, core.ErrTransientStorage)
				assert.True(t, core.IsTransient(got))
			} else {
				assert.ErrorIs(t, got, core.ErrPermanentStorage)
				assert.False(t, core.IsTransient(got))
			}
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.Equal(t, context.Canceled, Classify(context.Canceled))

	already := fmt.Errorf("%w: boom", core.ErrPermanentStorage)
	assert.Equal(t, already, Classify(already))

	transient := Classify(io.EOF)
	assert.Equal(t, transient, Classify(transient), "no double wrap")
}
