package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Validator is a preflight check run before the network call. A failure
// makes the file's task terminal without contacting the backend.
type Validator func(ctx context.Context, src Source) error

type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FileName, e.Reason)
}

func (e *ValidationError) ErrorDetail() string {
	return e.Reason
}

func ExtensionValidator(exts ...string) Validator {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return func(ctx context.Context, src Source) error {
		ext := strings.ToLower(filepath.Ext(src.Name()))
		if _, ok := allowed[ext]; ok {
			return nil
		}
		return &ValidationError{FileName: src.Name(), Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
}

// PDFValidator checks the file parses as a PDF in relaxed mode.
func PDFValidator() Validator {
	return func(ctx context.Context, src Source) error {
		rc, err := src.Open()
		if err != nil {
			return &ValidationError{FileName: src.Name(), Reason: "cannot open file: " + err.Error()}
		}
		defer rc.Close()
		rs, ok := rc.(io.ReadSeeker)
		if !ok {
			data, err := io.ReadAll(rc)
			if err != nil {
				return &ValidationError{FileName: src.Name(), Reason: "cannot read file: " + err.Error()}
			}
			rs = bytes.NewReader(data)
		}
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.Validate(rs, conf); err != nil {
			return &ValidationError{FileName: src.Name(), Reason: "not a valid PDF: " + err.Error()}
		}
		return nil
	}
}
