package model

import (
	"fmt"

	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

// ExtractedImage is an image the backend pulled out of a document page.
type ExtractedImage struct {
	ID         int64  `json:"id"`
	PageNumber int    `json:"page_number"`
	ImagePath  string `json:"image_path"`
	Width      *int   `json:"width"`
	Height     *int   `json:"height"`
}

// ExtractedTable is a table the backend recognised on a document page.
// Either export path may be missing when that conversion failed.
type ExtractedTable struct {
	ID         int64   `json:"id"`
	PageNumber int     `json:"page_number"`
	CSVPath    *string `json:"csv_path"`
	ExcelPath  *string `json:"excel_path"`
}

// DownloadKind selects which extracted artifact a download refers to.
type DownloadKind string

const (
	DownloadImage      DownloadKind = "image"
	DownloadTableCSV   DownloadKind = "table_csv"
	DownloadTableExcel DownloadKind = "table_excel"
)

func ParseDownloadKind(s string) (DownloadKind, error) {
	switch k := DownloadKind(s); k {
	case DownloadImage, DownloadTableCSV, DownloadTableExcel:
		return k, nil
	case "csv":
		return DownloadTableCSV, nil
	case "excel", "xlsx":
		return DownloadTableExcel, nil
	}
	return "", fmt.Errorf("%w: unknown download type %q", appErr.ErrInvalid, s)
}

// Ext is the file extension to save an artifact of this kind under.
func (k DownloadKind) Ext() string {
	switch k {
	case DownloadTableCSV:
		return ".csv"
	case DownloadTableExcel:
		return ".xlsx"
	}
	return ".png"
}
