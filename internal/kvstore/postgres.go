package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/devJinesh/DocuQuery/internal/db"
	"github.com/devJinesh/DocuQuery/internal/pkg/dbutil"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

const defaultPostgresTable = "docuquery_kv"

var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type postgresConfig struct {
	db.Config
	Table string `json:"table"`
}

type postgresStore struct {
	db    *sqlx.DB
	table string
}

func init() {
	Register("postgres", createPostgresStore)
}

func createPostgresStore(args interface{}) (Store, error) {
	cfg := &postgresConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	conn, err := db.Open(context.Background(), cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("open postgres kv store: %w", err)
	}
	return NewPostgres(conn, cfg.Table)
}

// NewPostgres creates the backing table when it is missing.
func NewPostgres(conn *sqlx.DB, table string) (Store, error) {
	if table == "" {
		table = defaultPostgresTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid kv table name: %s", table)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k TEXT PRIMARY KEY,
		v BYTEA NOT NULL,
		mtime BIGINT NOT NULL
	)`, table)
	if _, err := conn.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &postgresStore{db: conn, table: table}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	sqlStr, args, err := builder.BuildSelect(s.table, map[string]interface{}{"k": key}, []string{"v"})
	if err != nil {
		return nil, err
	}
	var value []byte
	if err := s.db.GetContext(ctx, &value, dbutil.Rebind(sqlStr), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	if !validKey(key) {
		return fmt.Errorf("invalid key %q: %w", key, appErr.ErrInvalid)
	}
	if value == nil {
		value = []byte{}
	}
	updated, err := s.update(ctx, key, value)
	if err != nil || updated {
		return err
	}
	sqlStr, args, err := builder.BuildInsert(s.table, []map[string]interface{}{{
		"k":     key,
		"v":     value,
		"mtime": time.Now().UnixMilli(),
	}})
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, dbutil.Rebind(sqlStr), args...); err != nil {
		if !dbutil.IsConflict(err) {
			return err
		}
		// lost an insert race; the row exists now
		_, err = s.update(ctx, key, value)
		return err
	}
	return nil
}

func (s *postgresStore) update(ctx context.Context, key string, value []byte) (bool, error) {
	sqlStr, args, err := builder.BuildUpdate(s.table, map[string]interface{}{"k": key}, map[string]interface{}{
		"v":     value,
		"mtime": time.Now().UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, dbutil.Rebind(sqlStr), args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *postgresStore) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := builder.BuildDelete(s.table, map[string]interface{}{"k": key})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, dbutil.Rebind(sqlStr), args...)
	return err
}
