package tardriver

import (
	"archive/tar"
	"io/fs"
	"time"

	"github.com/desertwitch/arcvfs/internal/entry"
)

// Entry is a TAR archive entry.
type Entry struct {
	*entry.Record
	typeflag byte
	linkname string
	uid, gid int
	uname    string
	gname    string
	offset   int64
}

func newInputEntry(hdr *tar.Header, offset int64) *Entry {
	typ := entry.Special
	switch hdr.Typeflag {
	case tar.TypeReg:
		typ = entry.File
	case tar.TypeDir:
		typ = entry.Directory
	}

	e := &Entry{
		Record:   entry.NewRecord(hdr.Name, typ, nil),
		typeflag: hdr.Typeflag,
		linkname: hdr.Linkname,
		uid:      hdr.Uid,
		gid:      hdr.Gid,
		uname:    hdr.Uname,
		gname:    hdr.Gname,
		offset:   offset,
	}

	size := int64(0)
	if typ == entry.File {
		size = hdr.Size
	}
	e.SetSize(entry.DataSize, size)
	e.SetSize(entry.StorageSize, size)

	e.SetTime(entry.Write, entry.Millis(hdr.ModTime))
	e.SetTime(entry.Read, entry.Millis(hdr.AccessTime))
	entry.SetMode(e, fs.FileMode(hdr.Mode).Perm()) //nolint:gosec

	return e
}

// header returns the header to write for the entry.
func (e *Entry) header() *tar.Header {
	hdr := &tar.Header{
		Name:     e.Name(),
		Typeflag: e.typeflag,
		Linkname: e.linkname,
		Uid:      e.uid,
		Gid:      e.gid,
		Uname:    e.uname,
		Gname:    e.gname,
		Format:   tar.FormatPAX,
	}

	def := fs.FileMode(0o644)

	switch e.Type() {
	case entry.Directory:
		hdr.Name += "/"
		hdr.Typeflag = tar.TypeDir
		def = 0o755
	case entry.File:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = max(e.Size(entry.DataSize), 0)
	default:
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
	}

	hdr.Mode = int64(entry.Mode(e, def))

	if t := e.Time(entry.Write); t != entry.Unknown {
		hdr.ModTime = entry.FromMillis(t)
	} else {
		hdr.ModTime = time.Now()
	}

	if t := e.Time(entry.Read); t != entry.Unknown {
		hdr.AccessTime = entry.FromMillis(t)
	}

	return hdr
}
