package tardriver

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/desertwitch/arcvfs/internal/keys"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec wraps the byte stream of a TAR archive, e.g. to compress it.
type Codec interface {
	// Name returns the scheme suffix of the codec, "" for plain TAR.
	Name() string

	// Suffixes returns the entry name suffixes of archives using the codec.
	Suffixes() []string

	// NewReader decodes r. kp provides keys for decryption, invalid is true
	// if the key returned by the previous attempt has been rejected.
	NewReader(r io.Reader, kp keys.Provider, invalid bool) (io.ReadCloser, error)

	// NewWriter encodes into w. Closing the writer does not close w.
	NewWriter(w io.Writer, kp keys.Provider) (io.WriteCloser, error)
}

// Plain is the identity [Codec] of uncompressed TAR archives.
type Plain struct{}

func (Plain) Name() string {
	return ""
}

func (Plain) Suffixes() []string {
	return []string{".tar"}
}

func (Plain) NewReader(r io.Reader, _ keys.Provider, _ bool) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (Plain) NewWriter(w io.Writer, _ keys.Provider) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

// Gzip is the [Codec] of gzip compressed TAR archives.
type Gzip struct {
	Level int
}

func (Gzip) Name() string {
	return "gz"
}

func (Gzip) Suffixes() []string {
	return []string{".tar.gz", ".tgz"}
}

func (Gzip) NewReader(r io.Reader, _ keys.Provider, _ bool) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("(codec-gzip) %w", err)
	}

	return zr, nil
}

func (c Gzip) NewWriter(w io.Writer, _ keys.Provider) (io.WriteCloser, error) {
	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("(codec-gzip) %w", err)
	}

	return zw, nil
}

// Zstd is the [Codec] of zstd compressed TAR archives.
type Zstd struct{}

func (Zstd) Name() string {
	return "zst"
}

func (Zstd) Suffixes() []string {
	return []string{".tar.zst", ".tzst"}
}

func (Zstd) NewReader(r io.Reader, _ keys.Provider, _ bool) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("(codec-zstd) %w", err)
	}

	return zr.IOReadCloser(), nil
}

func (Zstd) NewWriter(w io.Writer, _ keys.Provider) (io.WriteCloser, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("(codec-zstd) %w", err)
	}

	return zw, nil
}

// LZ4 is the [Codec] of LZ4 frame compressed TAR archives.
type LZ4 struct{}

func (LZ4) Name() string {
	return "lz4"
}

func (LZ4) Suffixes() []string {
	return []string{".tar.lz4"}
}

func (LZ4) NewReader(r io.Reader, _ keys.Provider, _ bool) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (LZ4) NewWriter(w io.Writer, _ keys.Provider) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

// XZ is the [Codec] of xz compressed TAR archives.
type XZ struct{}

func (XZ) Name() string {
	return "xz"
}

func (XZ) Suffixes() []string {
	return []string{".tar.xz", ".txz"}
}

func (XZ) NewReader(r io.Reader, _ keys.Provider, _ bool) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("(codec-xz) %w", err)
	}

	return io.NopCloser(xr), nil
}

func (XZ) NewWriter(w io.Writer, _ keys.Provider) (io.WriteCloser, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("(codec-xz) %w", err)
	}

	return xw, nil
}

// Age is the [Codec] of passphrase encrypted TAR archives.
type Age struct {
	// WorkFactor is the scrypt work factor of new archives, zero for the
	// library default.
	WorkFactor int
}

func (Age) Name() string {
	return "age"
}

func (Age) Suffixes() []string {
	return []string{".tar.age"}
}

func (Age) NewReader(r io.Reader, kp keys.Provider, invalid bool) (io.ReadCloser, error) {
	if kp == nil {
		return nil, fmt.Errorf("(codec-age) %w", keys.ErrNoKey)
	}

	key, err := kp.ReadKey(invalid)
	if err != nil {
		return nil, fmt.Errorf("(codec-age) %w", err)
	}

	id, err := age.NewScryptIdentity(string(key))
	if err != nil {
		return nil, fmt.Errorf("(codec-age) %w", err)
	}

	dr, err := age.Decrypt(r, id)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("(codec-age) %w: %w", ErrWrongKey, err)
		}

		return nil, fmt.Errorf("(codec-age) %w", err)
	}

	return io.NopCloser(dr), nil
}

func (c Age) NewWriter(w io.Writer, kp keys.Provider) (io.WriteCloser, error) {
	if kp == nil {
		return nil, fmt.Errorf("(codec-age) %w", keys.ErrNoKey)
	}

	key, err := kp.WriteKey()
	if err != nil {
		return nil, fmt.Errorf("(codec-age) %w", err)
	}

	recipient, err := age.NewScryptRecipient(string(key))
	if err != nil {
		return nil, fmt.Errorf("(codec-age) %w", err)
	}
	if c.WorkFactor > 0 {
		recipient.SetWorkFactor(c.WorkFactor)
	}

	ew, err := age.Encrypt(w, recipient)
	if err != nil {
		return nil, fmt.Errorf("(codec-age) %w", err)
	}

	return ew, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
