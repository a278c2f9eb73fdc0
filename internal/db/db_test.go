package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataSource(t *testing.T) {
	require.Equal(t, "postgres://x", Config{DSN: "postgres://x", Host: "ignored"}.dataSource())
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=docs sslmode=disable",
		Config{Host: "db", User: "u", Password: "p", DBName: "docs"}.dataSource())
}

func TestOpenRequiresTarget(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
