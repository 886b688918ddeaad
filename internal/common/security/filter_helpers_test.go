package auth

import (
	"context"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"github.com/stretchr/testify/require"
)

var shellColumns = grammar.FieldColumnMapping{PathRoute: "route"}

func shellsDataset() *goqu.SelectDataset {
	return goqu.Dialect("postgres").From(goqu.T("shells")).Prepared(true)
}

func TestApplyPredicate(t *testing.T) {
	t.Parallel()
	qf := &CompileResult{Predicate: grammar.Compare(grammar.OpEq, routeField, grammar.StrVal("/shells/abc"))}

	ds, err := ApplyPredicate(shellsDataset(), qf, shellColumns)
	require.NoError(t, err)
	sqlStr, args, err := ds.ToSQL()
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "shells" WHERE "route" = $1`, sqlStr)
	require.Equal(t, []any{"/shells/abc"}, args)
}

func TestApplyPredicateEdgeCases(t *testing.T) {
	t.Parallel()

	ds, err := ApplyPredicate(shellsDataset(), nil, shellColumns)
	require.NoError(t, err)
	sqlStr, _, err := ds.ToSQL()
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "shells"`, sqlStr)

	ds, err = ApplyPredicate(shellsDataset(), &CompileResult{Predicate: grammar.Bool(true)}, shellColumns)
	require.NoError(t, err)
	sqlStr, _, err = ds.ToSQL()
	require.NoError(t, err)
	require.NotContains(t, sqlStr, "WHERE")

	ds, err = ApplyPredicate(shellsDataset(), &CompileResult{Predicate: grammar.Bool(false)}, shellColumns)
	require.NoError(t, err)
	sqlStr, _, err = ds.ToSQL()
	require.NoError(t, err)
	require.Contains(t, sqlStr, "WHERE FALSE")

	_, err = ApplyPredicate(shellsDataset(), &CompileResult{FallbackRequired: true}, shellColumns)
	require.ErrorIs(t, err, ErrFallbackRequired)

	unmapped := &CompileResult{Predicate: grammar.Compare(grammar.OpEq, idShortField, grammar.StrVal("motor"))}
	_, err = ApplyPredicate(shellsDataset(), unmapped, shellColumns)
	require.ErrorIs(t, err, grammar.ErrNotSQLRepresentable)
}

func TestAddFilterQueryFromContext(t *testing.T) {
	t.Parallel()
	qf := &CompileResult{Predicate: grammar.Compare(grammar.OpStartsWith, routeField, grammar.StrVal("/shells/"))}
	ctx := WithQueryFilter(context.Background(), qf)
	require.Same(t, qf, GetQueryFilter(ctx))

	ds, err := AddFilterQueryFromContext(ctx, shellsDataset(), shellColumns)
	require.NoError(t, err)
	sqlStr, args, err := ds.ToSQL()
	require.NoError(t, err)
	require.Contains(t, sqlStr, `"route" LIKE $1`)
	require.Equal(t, []any{"/shells/%"}, args)

	require.Nil(t, GetQueryFilter(context.Background()))
	ds, err = AddFilterQueryFromContext(context.Background(), shellsDataset(), shellColumns)
	require.NoError(t, err)
	sqlStr, _, err = ds.ToSQL()
	require.NoError(t, err)
	require.NotContains(t, sqlStr, "WHERE")
}
