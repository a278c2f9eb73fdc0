package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrUnavailable = errors.New("backend unavailable")
	ErrBusy        = errors.New("operation already in flight")
	ErrNoFiles     = errors.New("no file selected")
	ErrEmptyQuery  = errors.New("question is empty")
)

const (
	MsgConnection = "Unable to reach the server. Please check your connection and try again."
	MsgFallback   = "Something went wrong. Please try again."
)

type detailer interface {
	ErrorDetail() string
}

type transport interface {
	Transport() bool
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Detail returns the text a user should see for err: the backend-provided
// message when there is one, a connection hint when no response arrived,
// a generic fallback otherwise.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var d detailer
	if errors.As(err, &d) {
		if msg := d.ErrorDetail(); msg != "" {
			return msg
		}
	}
	var t transport
	if errors.As(err, &t) && t.Transport() {
		return MsgConnection
	}
	switch {
	case errors.Is(err, ErrNoFiles), errors.Is(err, ErrEmptyQuery):
		return err.Error()
	}
	return MsgFallback
}
