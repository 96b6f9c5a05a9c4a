package tsfile

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoRoot is wrapped by a ParseError when the document has no <TS> root.
var ErrNoRoot = errors.New("missing <TS> root element")

// ParseError reports a document that could not be loaded as a .ts file.
type ParseError struct {
	Path string // empty when parsing from memory
	Line int    // 1-based, 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "input"
	}
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s:%d: %v", where, e.Line, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", where, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(err error) *ParseError {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &ParseError{Line: se.Line, Err: errors.New(se.Msg)}
	}
	return &ParseError{Err: err}
}

// WriteError reports a failure to persist a document.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
