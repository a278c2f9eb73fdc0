// Package dbtest opens the postgres database used by integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/devJinesh/DocuQuery/internal/db"
)

// Open connects to TEST_DB_DSN, or to TEST_DB_HOST with the default test
// credentials, and skips the test when neither is set.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := db.Config{DSN: os.Getenv("TEST_DB_DSN")}
	if cfg.DSN == "" {
		host := os.Getenv("TEST_DB_HOST")
		if host == "" {
			t.Skip("TEST_DB_DSN / TEST_DB_HOST not set, skipping postgres test")
		}
		cfg = db.Config{
			Host:     host,
			Port:     5432,
			User:     "docuquery",
			Password: "docuquery_pass",
			DBName:   "docuquery_test",
			SSLMode:  "disable",
		}
	}
	conn, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
