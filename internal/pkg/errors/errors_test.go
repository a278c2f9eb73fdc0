package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAPIError struct{ detail string }

func (e *fakeAPIError) Error() string       { return "api: " + e.detail }
func (e *fakeAPIError) ErrorDetail() string { return e.detail }

type fakeTransportError struct{}

func (e *fakeTransportError) Error() string   { return "dial tcp 127.0.0.1:1: connect: connection refused" }
func (e *fakeTransportError) Transport() bool { return true }

func TestDetail(t *testing.T) {
	require.Equal(t, "", Detail(nil))
	require.Equal(t, "file too large", Detail(fmt.Errorf("upload: %w", &fakeAPIError{detail: "file too large"})))
	require.Equal(t, MsgFallback, Detail(&fakeAPIError{}))
	require.Equal(t, MsgConnection, Detail(fmt.Errorf("query: %w", &fakeTransportError{})))
	require.Equal(t, MsgFallback, Detail(errors.New("boom")))
	require.Equal(t, ErrNoFiles.Error(), Detail(ErrNoFiles))
}
