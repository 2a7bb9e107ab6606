package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesAreInDependencyOrder(t *testing.T) {
	require.NoError(t, ValidateOrder(Tables))
	assert.Equal(t, []string{
		"users", "settings", "subscription_plans", "subscriptions", "ai_models",
		"conversations", "messages", "api_usage", "storage_items", "payments",
	}, TableNames())
}

func TestTablesDeclareForeignKeyEdges(t *testing.T) {
	want := map[string][]string{
		"subscriptions": {"users", "subscription_plans"},
		"conversations": {"users", "ai_models"},
		"messages":      {"conversations"},
		"api_usage":     {"users", "ai_models"},
		"storage_items": {"users"},
		"payments":      {"users", "subscriptions"},
	}
	for _, tbl := range Tables {
		assert.ElementsMatch(t, want[tbl.Name], tbl.References, tbl.Name)
		for _, ref := range tbl.References {
			assert.Contains(t, tbl.CreateSQL(BackendPostgres), "REFERENCES "+ref+"(id)", tbl.Name)
		}
	}
}

func TestValidateOrderRejectsForwardReference(t *testing.T) {
	err := ValidateOrder([]Table{
		{Name: "messages", References: []string{"conversations"}},
		{Name: "conversations"},
	})
	var oe *OrderError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "messages", oe.Table)
	assert.Equal(t, "conversations", oe.References)
}

func TestValidateOrderRejectsDuplicates(t *testing.T) {
	err := ValidateOrder([]Table{{Name: "users"}, {Name: "users"}})
	assert.Error(t, err)
}

func TestMigrateRejectsBadOrderBeforeExecuting(t *testing.T) {
	gdb := openTestDB(t)
	_, err := MigrateTables(context.Background(), gdb, BackendSQLite, []Table{
		{Name: "child", References: []string{"parent"}, Columns: []string{"id TEXT PRIMARY KEY", "parent_id TEXT REFERENCES parent(id)"}},
		{Name: "parent", Columns: []string{"id TEXT PRIMARY KEY"}},
	})
	require.Error(t, err)
	assert.False(t, gdb.Migrator().HasTable("child"))
	assert.False(t, gdb.Migrator().HasTable("parent"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()

	first, err := Migrate(ctx, gdb, BackendSQLite)
	require.NoError(t, err)
	assert.Equal(t, TableNames(), first)

	second, err := Migrate(ctx, gdb, BackendSQLite)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	tables, err := ExistingTables(ctx, gdb)
	require.NoError(t, err)
	require.Len(t, tables, len(Tables))
	for _, ts := range tables {
		assert.True(t, ts.Exists, ts.Table)
	}
}

func TestMigrateCreatesOnlyAfterReferences(t *testing.T) {
	gdb := openTestDB(t)
	applied, err := Migrate(context.Background(), gdb, BackendSQLite)
	require.NoError(t, err)

	pos := make(map[string]int, len(applied))
	for i, name := range applied {
		pos[name] = i
	}
	for _, tbl := range Tables {
		for _, ref := range tbl.References {
			assert.Less(t, pos[ref], pos[tbl.Name], "%s created before %s", tbl.Name, ref)
		}
	}
}

func TestMigrateAbortsOnFirstFailure(t *testing.T) {
	gdb := openTestDB(t)
	applied, err := MigrateTables(context.Background(), gdb, BackendSQLite, []Table{
		{Name: "ok_table", Columns: []string{"id TEXT PRIMARY KEY"}},
		{Name: "broken", Columns: []string{"id TEXT PRIMARY KEY", "PRIMARY KEY"}},
		{Name: "never", Columns: []string{"id TEXT PRIMARY KEY"}},
	})
	var me *MigrationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "broken", me.Table)
	assert.NotNil(t, me.Unwrap())
	assert.Equal(t, []string{"ok_table"}, applied)
	assert.False(t, gdb.Migrator().HasTable("never"))
}

func TestMigrateCompletesPartialSchema(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	_, err := MigrateTables(ctx, gdb, BackendSQLite, Tables[:3])
	require.NoError(t, err)

	before, err := ExistingTables(ctx, gdb)
	require.NoError(t, err)
	assert.False(t, before[3].Exists)

	_, err = Migrate(ctx, gdb, BackendSQLite)
	require.NoError(t, err)
	after, err := ExistingTables(ctx, gdb)
	require.NoError(t, err)
	for _, ts := range after {
		assert.True(t, ts.Exists, ts.Table)
	}
}

func TestCreateSQLRendersDialect(t *testing.T) {
	var plans Table
	for _, tbl := range Tables {
		if tbl.Name == "subscription_plans" {
			plans = tbl
		}
	}
	assert.Contains(t, plans.CreateSQL(BackendPostgres), "features JSONB")
	assert.Contains(t, plans.CreateSQL(BackendSQLite), "features TEXT")

	settings := Tables[1]
	assert.Contains(t, settings.CreateSQL(BackendPostgres), "id SERIAL PRIMARY KEY")
	assert.Contains(t, settings.CreateSQL(BackendSQLite), "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.NotContains(t, settings.CreateSQL(BackendSQLite), "{")
}
