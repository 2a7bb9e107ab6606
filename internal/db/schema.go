package db

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"piexed/internal/models"
)

// Table is one create-if-absent table definition. Column types use the
// placeholders {json}, {serial} and {bool_true}/{bool_false}, rendered per
// backend.
type Table struct {
	Name       string
	References []string
	Columns    []string
	// Indexes are extra CREATE ... IF NOT EXISTS statements run after the table.
	Indexes []string
}

// Tables is the application schema in creation order.
var Tables = []Table{
	{
		Name: "users",
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"username VARCHAR(255) NOT NULL UNIQUE",
			"email VARCHAR(255) NOT NULL UNIQUE",
			"password VARCHAR(255) NOT NULL",
			"role VARCHAR(50) NOT NULL DEFAULT 'user'",
			"subscription_id VARCHAR(64)",
			"subscription_status VARCHAR(50)",
			"subscription_expires_at TIMESTAMP",
			"api_key VARCHAR(255)",
			"api_key_enabled BOOLEAN DEFAULT {bool_false}",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
	},
	{
		Name: "settings",
		Columns: []string{
			"id {serial}",
			"key VARCHAR(255) NOT NULL UNIQUE",
			"value TEXT",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
	},
	{
		Name: "subscription_plans",
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"name VARCHAR(255) NOT NULL",
			"description TEXT",
			"price DECIMAL(10, 2) NOT NULL",
			"billing_interval VARCHAR(50) NOT NULL",
			"features {json}",
			"model_access {json}",
			"usage_limits {json}",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
		Indexes: []string{
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_plans_name ON subscription_plans(name)",
		},
	},
	{
		Name:       "subscriptions",
		References: []string{"users", "subscription_plans"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"user_id VARCHAR(64) NOT NULL REFERENCES users(id)",
			"plan_id VARCHAR(64) NOT NULL REFERENCES subscription_plans(id)",
			"status VARCHAR(50) NOT NULL",
			"current_period_start TIMESTAMP NOT NULL",
			"current_period_end TIMESTAMP NOT NULL",
			"cancel_at_period_end BOOLEAN DEFAULT {bool_false}",
			"payment_method VARCHAR(50)",
			"payment_id VARCHAR(255)",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
	},
	{
		Name: "ai_models",
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"name VARCHAR(255) NOT NULL",
			"description TEXT",
			"type VARCHAR(50) NOT NULL",
			"provider VARCHAR(50) NOT NULL",
			"model_id VARCHAR(255) NOT NULL",
			"parameters {json}",
			"is_active BOOLEAN DEFAULT {bool_true}",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
		Indexes: []string{
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_models_name ON ai_models(name)",
		},
	},
	{
		Name:       "conversations",
		References: []string{"users", "ai_models"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"user_id VARCHAR(64) NOT NULL REFERENCES users(id)",
			"title VARCHAR(255)",
			"model_id VARCHAR(64) REFERENCES ai_models(id)",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
		Indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id)",
		},
	},
	{
		Name:       "messages",
		References: []string{"conversations"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"conversation_id VARCHAR(64) NOT NULL REFERENCES conversations(id)",
			"role VARCHAR(50) NOT NULL",
			"content TEXT NOT NULL",
			"tokens INTEGER",
			"created_at TIMESTAMP NOT NULL",
		},
		Indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)",
		},
	},
	{
		Name:       "api_usage",
		References: []string{"users", "ai_models"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"user_id VARCHAR(64) NOT NULL REFERENCES users(id)",
			"endpoint VARCHAR(255) NOT NULL",
			"model_id VARCHAR(64) REFERENCES ai_models(id)",
			"tokens_input INTEGER",
			"tokens_output INTEGER",
			"created_at TIMESTAMP NOT NULL",
		},
		Indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_api_usage_user_id_created_at ON api_usage(user_id, created_at)",
		},
	},
	{
		Name:       "storage_items",
		References: []string{"users"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"user_id VARCHAR(64) NOT NULL REFERENCES users(id)",
			"filename VARCHAR(255) NOT NULL",
			"original_filename VARCHAR(255) NOT NULL",
			"mime_type VARCHAR(255) NOT NULL",
			"size BIGINT NOT NULL",
			"path VARCHAR(255) NOT NULL",
			"storage_type VARCHAR(50) NOT NULL",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
	},
	{
		Name:       "payments",
		References: []string{"users", "subscriptions"},
		Columns: []string{
			"id VARCHAR(64) PRIMARY KEY",
			"user_id VARCHAR(64) NOT NULL REFERENCES users(id)",
			"subscription_id VARCHAR(64) REFERENCES subscriptions(id)",
			"amount DECIMAL(10, 2) NOT NULL",
			"currency VARCHAR(10) NOT NULL",
			"payment_method VARCHAR(50) NOT NULL",
			"payment_id VARCHAR(255)",
			"status VARCHAR(50) NOT NULL",
			"created_at TIMESTAMP NOT NULL",
			"updated_at TIMESTAMP NOT NULL",
		},
	},
}

// TableNames returns the names of Tables in creation order.
func TableNames() []string {
	out := make([]string, 0, len(Tables))
	for _, t := range Tables {
		out = append(out, t.Name)
	}
	return out
}

// CreateSQL renders the CREATE TABLE IF NOT EXISTS statement for backend.
func (t Table) CreateSQL(backend Backend) string {
	r := placeholders(backend)
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, "\t"+r.Replace(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", t.Name, strings.Join(cols, ",\n"))
}

func placeholders(backend Backend) *strings.Replacer {
	if backend == BackendPostgres {
		return strings.NewReplacer(
			"{json}", "JSONB",
			"{serial}", "SERIAL PRIMARY KEY",
			"{bool_true}", "true",
			"{bool_false}", "false",
		)
	}
	return strings.NewReplacer(
		"{json}", "TEXT",
		"{serial}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{bool_true}", "1",
		"{bool_false}", "0",
	)
}

// OrderError reports a table listed before one of the tables it references.
type OrderError struct {
	Table      string
	References string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("table %q references %q which is not created before it", e.Table, e.References)
}

// ValidateOrder checks that every table appears after all tables it
// references and that names are unique.
func ValidateOrder(tables []Table) error {
	seen := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("table %q is defined twice", t.Name)
		}
		for _, ref := range t.References {
			if ref == t.Name {
				continue
			}
			if _, ok := seen[ref]; !ok {
				return &OrderError{Table: t.Name, References: ref}
			}
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// MigrationError carries the failing table and the verbatim driver error.
type MigrationError struct {
	Table string
	Err   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("create table %s: %v", e.Table, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Migrate creates Tables if absent. It never drops or alters anything, so a
// partial schema left by an earlier failure is completed by running it again.
// It returns the tables processed, in order.
func Migrate(ctx context.Context, gdb *gorm.DB, backend Backend) ([]string, error) {
	return MigrateTables(ctx, gdb, backend, Tables)
}

func MigrateTables(ctx context.Context, gdb *gorm.DB, backend Backend, tables []Table) ([]string, error) {
	if err := ValidateOrder(tables); err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(tables))
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return applied, &MigrationError{Table: t.Name, Err: err}
		}
		if err := gdb.WithContext(ctx).Exec(t.CreateSQL(backend)).Error; err != nil {
			return applied, &MigrationError{Table: t.Name, Err: err}
		}
		for _, stmt := range t.Indexes {
			if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
				return applied, &MigrationError{Table: t.Name, Err: err}
			}
		}
		applied = append(applied, t.Name)
	}
	return applied, nil
}

// ExistingTables reports which application tables exist right now.
func ExistingTables(ctx context.Context, gdb *gorm.DB) ([]models.TableStatus, error) {
	out := make([]models.TableStatus, 0, len(Tables))
	m := gdb.WithContext(ctx).Migrator()
	for _, t := range Tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, models.TableStatus{Table: t.Name, Exists: m.HasTable(t.Name)})
	}
	return out, nil
}
