package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/student"
)

// conn runs queries on the database, or inside the transaction started by atomic.
type conn struct {
	db   *sqlx.DB
	ext  sqlx.ExtContext
	inTx bool
}

func newConn(db *sqlx.DB) conn {
	return conn{db: db, ext: db}
}

// atomic runs fn in a transaction, committed when fn succeeds. Nested calls join the running transaction.
func (c conn) atomic(ctx context.Context, fn func(tx conn) error) error {
	if c.inTx {
		return fn(c)
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			// pool closed
			return core.NewShutdownError("database connection closed: " + err.Error())
		}
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(conn{db: c.db, ext: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// lockClause locks the rows of table for the rest of the transaction, if any.
func (c conn) lockClause(table string) string {
	if !c.inTx {
		return ""
	}
	return " FOR UPDATE OF " + table
}

func (c conn) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, c.ext, dest, c.ext.Rebind(query), args...)
}

func (c conn) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, c.ext, dest, c.ext.Rebind(query), args...)
}

func (c conn) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := c.ext.ExecContext(ctx, c.ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// where collects ANDed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// search matches term case-insensitively anywhere in one of the columns.
func (w *where) search(term string, columns ...string) {
	if term == "" {
		return
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"
	conds := make([]string, 0, len(columns))
	for _, col := range columns {
		conds = append(conds, col+" ILIKE ?")
		w.args = append(w.args, pattern)
	}
	w.conds = append(w.conds, "("+strings.Join(conds, " OR ")+")")
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// isUUID keeps malformed IDs away from uuid columns, where postgres would reject the whole query.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// gradeRank orders a grade column from first to last grade.
func gradeRank(column string) string {
	grades := make([]string, 0, len(student.Grades))
	for _, g := range student.Grades {
		grades = append(grades, pq.QuoteLiteral(g))
	}
	return fmt.Sprintf("array_position(ARRAY[%s]::varchar[], %s::varchar)", strings.Join(grades, ","), column)
}

// columns renders table.column AS "prefix.column" for every column.
func columns(table, prefix string, cols ...string) string {
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		if prefix == "" {
			parts = append(parts, table+"."+col)
		} else {
			parts = append(parts, fmt.Sprintf(`%s.%s AS "%s.%s"`, table, col, prefix, col))
		}
	}
	return strings.Join(parts, ", ")
}
