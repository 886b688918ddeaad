/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register postgres dialect
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

var sqlIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresRepository keeps rules in a single PostgreSQL table:
//
//	id TEXT PRIMARY KEY, seq BIGSERIAL, rule_json JSONB, updated_at TIMESTAMPTZ
//
// seq preserves insertion order.
type PostgresRepository struct {
	db       *sql.DB
	dialect  goqu.DialectWrapper
	table    string
	tableSQL string
}

// NewPostgresRepository returns a repository on db using table. The table
// name must be a plain SQL identifier.
func NewPostgresRepository(db *sql.DB, table string) (*PostgresRepository, error) {
	table = strings.TrimSpace(table)
	if !sqlIdentifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid rules table name %q", table)
	}
	return &PostgresRepository{
		db:       db,
		dialect:  goqu.Dialect(common.Dialect),
		table:    table,
		tableSQL: `"` + table + `"`,
	}, nil
}

// EnsureSchema creates the rules table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			rule_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		r.tableSQL,
	)
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) selectRules() *goqu.SelectDataset {
	return r.dialect.
		From(goqu.T(r.table)).
		Prepared(true).
		Select(goqu.C("id"), goqu.C("rule_json"), goqu.C("updated_at"))
}

// List returns all rules ordered by insertion.
func (r *PostgresRepository) List(ctx context.Context) ([]Record, error) {
	sqlStr, args, err := r.selectRules().Order(goqu.C("seq").Asc()).ToSQL()
	if err != nil {
		return nil, err
	}
	//nolint:gosec // sqlStr is generated by goqu; table name is validated by sqlIdentifierPattern
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		id        string
		ruleRaw   []byte
		updatedAt time.Time
	)
	if err := row.Scan(&id, &ruleRaw, &updatedAt); err != nil {
		return Record{}, err
	}
	rule, err := decodeRule(id, ruleRaw)
	if err != nil {
		return Record{}, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return Record{ID: rule.ID, Rule: rule, UpdatedAt: updatedAt}, nil
}

// Get returns the rule stored under id.
func (r *PostgresRepository) Get(ctx context.Context, id grammar.RuleID) (Record, error) {
	sqlStr, args, err := r.selectRules().Where(goqu.C("id").Eq(string(id))).Limit(1).ToSQL()
	if err != nil {
		return Record{}, err
	}
	//nolint:gosec // sqlStr is generated by goqu; table name is validated by sqlIdentifierPattern
	rec, err := scanRecord(r.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, common.NewErrNotFound(string(id))
	}
	return rec, err
}

// Insert stores rule. A rule without ID gets a UUID.
func (r *PostgresRepository) Insert(ctx context.Context, rule grammar.Rule) (Record, error) {
	id, raw, err := encodeRule(rule)
	if err != nil {
		return Record{}, err
	}
	ds := r.dialect.
		Insert(goqu.T(r.table)).
		Prepared(true).
		Rows(goqu.Record{
			"id":         string(id),
			"rule_json":  goqu.L("?::jsonb", string(raw)),
			"updated_at": goqu.L("NOW()"),
		}).
		Returning(goqu.C("updated_at"))
	sqlStr, args, err := ds.ToSQL()
	if err != nil {
		return Record{}, err
	}
	var updatedAt time.Time
	//nolint:gosec // sqlStr is generated by goqu; table name is validated by sqlIdentifierPattern
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&updatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, common.NewErrConflict(fmt.Sprintf("rule id %q already exists", id))
		}
		return Record{}, err
	}
	rule.ID = id
	return Record{ID: id, Rule: rule, UpdatedAt: updatedAt}, nil
}

// Replace overwrites the rule stored under id.
func (r *PostgresRepository) Replace(ctx context.Context, id grammar.RuleID, rule grammar.Rule) (Record, error) {
	rule.ID = id
	_, raw, err := encodeRule(rule)
	if err != nil {
		return Record{}, err
	}
	ds := r.dialect.
		Update(goqu.T(r.table)).
		Prepared(true).
		Set(goqu.Record{
			"rule_json":  goqu.L("?::jsonb", string(raw)),
			"updated_at": goqu.L("NOW()"),
		}).
		Where(goqu.C("id").Eq(string(id))).
		Returning(goqu.C("updated_at"))
	sqlStr, args, err := ds.ToSQL()
	if err != nil {
		return Record{}, err
	}
	var updatedAt time.Time
	//nolint:gosec // sqlStr is generated by goqu; table name is validated by sqlIdentifierPattern
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, common.NewErrNotFound(string(id))
		}
		return Record{}, err
	}
	return Record{ID: id, Rule: rule, UpdatedAt: updatedAt}, nil
}

// Delete removes the rule stored under id.
func (r *PostgresRepository) Delete(ctx context.Context, id grammar.RuleID) error {
	sqlStr, args, err := r.dialect.
		Delete(goqu.T(r.table)).
		Prepared(true).
		Where(goqu.C("id").Eq(string(id))).
		ToSQL()
	if err != nil {
		return err
	}
	//nolint:gosec // sqlStr is generated by goqu; table name is validated by sqlIdentifierPattern
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NewErrNotFound(string(id))
	}
	return nil
}

// ReplaceAll swaps the whole rule set inside one transaction.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, rules []grammar.Rule) error {
	rows := make([]any, 0, len(rules))
	seen := make(map[grammar.RuleID]struct{}, len(rules))
	for _, rule := range rules {
		id, raw, err := encodeRule(rule)
		if err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return common.NewErrConflict(fmt.Sprintf("rule id %q occurs twice", id))
		}
		seen[id] = struct{}{}
		rows = append(rows, goqu.Record{
			"id":         string(id),
			"rule_json":  goqu.L("?::jsonb", string(raw)),
			"updated_at": goqu.L("NOW()"),
		})
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteSQL, deleteArgs, err := r.dialect.Delete(goqu.T(r.table)).ToSQL()
	if err != nil {
		return err
	}
	//nolint:gosec // deleteSQL is generated by goqu; table name is validated by sqlIdentifierPattern
	if _, err := tx.ExecContext(ctx, deleteSQL, deleteArgs...); err != nil {
		return err
	}

	if len(rows) > 0 {
		insertSQL, insertArgs, err := r.dialect.Insert(goqu.T(r.table)).Prepared(true).Rows(rows...).ToSQL()
		if err != nil {
			return err
		}
		//nolint:gosec // insertSQL is generated by goqu; table name is validated by sqlIdentifierPattern
		if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
