// Package fileservice implements the five request handlers (SPEC_FULL.md §4.6),
// modeled on original_source/src/server/ServerService.java's handleReadRequest,
// handleWriteInsertRequest, handleWriteDeleteRequest and handleFileInfoRequest.
// Every exported method is a pure function of the filesystem: it takes a request's
// fields and returns the wire.Response to send, with no knowledge of invocation
// semantics, monitor callbacks, or the reply cache — those are composed on top in
// package server.
package fileservice

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Service serves all file operations rooted at a single directory, mirroring the
// flat single-root namespace the ancestor's drone/storage package serves files
// from (SPEC_FULL.md §4.6).
type Service struct {
	root string
}

// New constructs a Service rooted at root. root is resolved to an absolute path
// once so every subsequent traversal check is a simple prefix comparison.
func New(root string) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fileservice: resolve root %q: %w", root, err)
	}
	return &Service{root: abs}, nil
}

var errPathEscapesRoot = errors.New("fileservice: path escapes filesystem root")

// resolve joins path onto the service root and rejects any traversal outside it.
func (s *Service) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", errPathEscapesRoot
	}
	return full, nil
}

// Result carries a handler's wire-level outcome fields, decoupled from
// wire.Response so this package has no dependency on the codec layer.
type Result struct {
	Status               uint32 // one of wire.Status's numeric values, named per the caller's own enum
	Payload              []byte
	Message              string
	ServerLastModifiedMs int64
	// UpdatedContent is the full post-operation file content, set only by
	// WriteInsert and WriteDelete on success, for the caller to forward to
	// monitor.Registry.Notify (SPEC_FULL.md §4.7).
	UpdatedContent []byte
}

// Status code values, duplicated from package wire so this package does not
// import the codec layer; package server converts Result into wire.Response.
const (
	statusReadSuccess      = 100
	statusReadError        = 101
	statusReadIncomplete   = 102
	statusWriteInsertOK    = 200
	statusWriteInsertError = 201
	statusWriteDeleteOK    = 400
	statusWriteDeleteError = 401
	statusFileInfoSuccess  = 500
	statusFileInfoError    = 501
)

// Read implements the READ operation: open read-only, reject an offset at or
// past EOF, otherwise read up to length bytes, reporting READ_INCOMPLETE when
// fewer than length bytes remain.
func (s *Service) Read(path string, offset, length uint64) Result {
	full, err := s.resolve(path)
	if err != nil {
		return errorResult(statusReadError, err)
	}

	f, err := os.Open(full)
	if err != nil {
		return errorResult(statusReadError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errorResult(statusReadError, err)
	}
	if offset >= uint64(info.Size()) {
		return Result{Status: statusReadError, Message: fmt.Sprintf("offset %d is at or past end of file (size %d)", offset, info.Size()), ServerLastModifiedMs: -1}
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return errorResult(statusReadError, err)
	}

	status := uint32(statusReadSuccess)
	if uint64(n) < length {
		status = statusReadIncomplete
	}
	return Result{
		Status:               status,
		Payload:              buf[:n],
		Message:              "ok",
		ServerLastModifiedMs: info.ModTime().UnixMilli(),
	}
}

// WriteInsert implements WRITE_INSERT: insert payload's bytes at offset, shifting
// any existing bytes at and after offset to the right. File state is left
// undefined if a write fails partway through (SPEC_FULL.md §4.6, an intentional
// simplification relative to the temp-file staging the original source uses).
func (s *Service) WriteInsert(path string, offset uint64, payload []byte) Result {
	full, err := s.resolve(path)
	if err != nil {
		return errorResult(statusWriteInsertError, err)
	}

	existing, err := os.ReadFile(full)
	if err != nil && !os.IsNotExist(err) {
		return errorResult(statusWriteInsertError, err)
	}
	if offset > uint64(len(existing)) {
		return Result{Status: statusWriteInsertError, Message: fmt.Sprintf("offset %d exceeds file size %d", offset, len(existing)), ServerLastModifiedMs: -1}
	}

	updated := make([]byte, 0, len(existing)+len(payload))
	updated = append(updated, existing[:offset]...)
	updated = append(updated, payload...)
	updated = append(updated, existing[offset:]...)

	if err := os.WriteFile(full, updated, 0o644); err != nil {
		return errorResult(statusWriteInsertError, err)
	}
	modMs, err := modTimeMs(full)
	if err != nil {
		return errorResult(statusWriteInsertError, err)
	}

	return Result{
		Status:               statusWriteInsertOK,
		Message:              "ok",
		ServerLastModifiedMs: modMs,
		UpdatedContent:       updated,
	}
}

// WriteDelete implements WRITE_DELETE: remove length bytes starting at offset,
// shifting the remainder left.
func (s *Service) WriteDelete(path string, offset, length uint64) Result {
	full, err := s.resolve(path)
	if err != nil {
		return errorResult(statusWriteDeleteError, err)
	}

	existing, err := os.ReadFile(full)
	if err != nil {
		return errorResult(statusWriteDeleteError, err)
	}
	if offset+length > uint64(len(existing)) {
		return Result{Status: statusWriteDeleteError, Message: fmt.Sprintf("range [%d,%d) exceeds file size %d", offset, offset+length, len(existing)), ServerLastModifiedMs: -1}
	}

	updated := make([]byte, 0, len(existing)-int(length))
	updated = append(updated, existing[:offset]...)
	updated = append(updated, existing[offset+length:]...)

	if err := os.WriteFile(full, updated, 0o644); err != nil {
		return errorResult(statusWriteDeleteError, err)
	}
	modMs, err := modTimeMs(full)
	if err != nil {
		return errorResult(statusWriteDeleteError, err)
	}

	return Result{
		Status:               statusWriteDeleteOK,
		Message:              "ok",
		ServerLastModifiedMs: modMs,
		UpdatedContent:       updated,
	}
}

// FileInfo implements FILE_INFO: a small descriptive payload about path, built
// the way ServerService.handleFileInfoRequest assembles its string, but as
// newline-separated key:value pairs rather than JSON, since this package has no
// serialization dependency of its own.
func (s *Service) FileInfo(path string) Result {
	full, err := s.resolve(path)
	if err != nil {
		return errorResult(statusFileInfoError, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return errorResult(statusFileInfoError, err)
	}

	perm := info.Mode().Perm()
	var b strings.Builder
	fmt.Fprintf(&b, "name:%s\n", info.Name())
	fmt.Fprintf(&b, "size:%d\n", info.Size())
	fmt.Fprintf(&b, "lastModified:%s\n", info.ModTime().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "isDir:%t\n", info.IsDir())
	fmt.Fprintf(&b, "mode:%s\n", info.Mode().String())
	fmt.Fprintf(&b, "canRead:%t\n", perm&0o400 != 0)
	fmt.Fprintf(&b, "canWrite:%t\n", perm&0o200 != 0)
	fmt.Fprintf(&b, "canExecute:%t\n", perm&0o100 != 0)
	fmt.Fprintf(&b, "hidden:%t\n", strings.HasPrefix(info.Name(), "."))
	fmt.Fprintf(&b, "absolutePath:%s\n", full)
	fmt.Fprintf(&b, "parent:%s\n", filepath.Dir(full))

	return Result{
		Status:               statusFileInfoSuccess,
		Payload:              []byte(b.String()),
		Message:              "ok",
		ServerLastModifiedMs: info.ModTime().UnixMilli(),
	}
}

func modTimeMs(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}

func errorResult(status uint32, err error) Result {
	return Result{Status: status, Message: err.Error(), ServerLastModifiedMs: -1}
}
