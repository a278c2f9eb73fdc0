package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

func TestParseDownloadKind(t *testing.T) {
	for in, want := range map[string]DownloadKind{
		"image":       DownloadImage,
		"table_csv":   DownloadTableCSV,
		"csv":         DownloadTableCSV,
		"table_excel": DownloadTableExcel,
		"xlsx":        DownloadTableExcel,
	} {
		got, err := ParseDownloadKind(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseDownloadKind("thumbnail")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	require.Equal(t, ".png", DownloadImage.Ext())
	require.Equal(t, ".csv", DownloadTableCSV.Ext())
	require.Equal(t, ".xlsx", DownloadTableExcel.Ext())
}
