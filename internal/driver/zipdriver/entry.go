package zipdriver

import (
	"io/fs"
	"strings"
	"time"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/klauspost/compress/zip"
)

// Entry is a ZIP archive entry.
type Entry struct {
	*entry.Record
	method  uint16
	crc32   uint32
	comment string
	file    *zip.File
	origin  *Entry
}

func newInputEntry(f *zip.File) *Entry {
	typ := entry.File
	if strings.HasSuffix(f.Name, "/") || f.Mode().IsDir() {
		typ = entry.Directory
	}

	e := &Entry{
		Record:  entry.NewRecord(f.Name, typ, nil),
		method:  f.Method,
		crc32:   f.CRC32,
		comment: f.Comment,
		file:    f,
	}

	e.SetSize(entry.DataSize, int64(f.UncompressedSize64))   //nolint:gosec
	e.SetSize(entry.StorageSize, int64(f.CompressedSize64)) //nolint:gosec

	if !f.Modified.IsZero() {
		e.SetTime(entry.Write, entry.Millis(f.Modified))
	}

	if perm := f.Mode().Perm(); perm != 0 {
		entry.SetMode(e, perm)
	}

	return e
}

// Method returns the compression method.
func (e *Entry) Method() uint16 {
	return e.method
}

// CRC32 returns the checksum of the content, zero while unknown.
func (e *Entry) CRC32() uint32 {
	return e.crc32
}

func (e *Entry) SetCRC32(crc uint32) {
	e.crc32 = crc
}

// header returns the file header to write for the entry.
func (e *Entry) header() *zip.FileHeader {
	name := e.Name()
	method := e.method

	if e.Type() == entry.Directory {
		name += "/"
		method = zip.Store
	}

	fh := &zip.FileHeader{
		Name:               name,
		Comment:            e.comment,
		Method:             method,
		UncompressedSize64: uint64(max(e.Size(entry.DataSize), 0)), //nolint:gosec
	}

	modified := e.Time(entry.Write)
	if modified == entry.Unknown {
		fh.Modified = time.Now()
	} else {
		fh.Modified = entry.FromMillis(modified)
	}

	def := fs.FileMode(0o644)
	if e.Type() == entry.Directory {
		def = 0o755
	}
	mode := entry.Mode(e, def)
	if e.Type() == entry.Directory {
		mode |= fs.ModeDir
	}
	fh.SetMode(mode)

	return fh
}

// raw reports whether the stored content of peer can be copied into dst
// without recompression.
func raw(dst *Entry, peer entry.Entry) bool {
	src, ok := peer.(*Entry)

	return ok && dst != nil && dst.origin == src && src.file != nil &&
		dst.method == src.method && dst.Type() == entry.File
}
