package upload

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Source is a file handle the coordinator can open once per attempt.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type pathSource struct {
	path string
}

func FromPath(path string) Source {
	return pathSource{path: path}
}

func (s pathSource) Name() string {
	return filepath.Base(s.path)
}

func (s pathSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

type bytesSource struct {
	name string
	data []byte
}

func FromBytes(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (s bytesSource) Name() string {
	return s.name
}

func (s bytesSource) Open() (io.ReadCloser, error) {
	return readSeekNopCloser{bytes.NewReader(s.data)}, nil
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
