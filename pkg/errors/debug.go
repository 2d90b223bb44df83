package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the non-production error body: the full cause chain plus
// whatever Postgres reported, from either driver.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Code: As(err).codeOrEmpty()}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	if pgErr, ok := asType[*pgconn.PgError](err); ok {
		d.setPG(pgErr.Code, pgErr.ConstraintName, pgErr.TableName, pgErr.ColumnName, pgErr.Detail, pgErr.Message)
	} else if pqErr, ok := asType[*pq.Error](err); ok {
		d.setPG(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
	return d
}

func (d *ErrorDump) setPG(code, constraint, table, column, detail, message string) {
	d.PGCode, d.PGConstraint, d.PGTable = code, constraint, table
	d.PGColumn, d.PGDetail, d.PGMessage = column, detail, message
}

func asType[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
