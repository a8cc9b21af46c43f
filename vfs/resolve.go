package vfs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/mount"
)

// target is an entry name within the file system of a controller.
type target struct {
	c     controller.Controller
	point *mount.Point
	name  string
}

// resolve decomposes name into the chain of mount points it passes through.
// Every element with an archive suffix starts a nested file system unless
// its parent holds a directory of that name, or the element is the last one
// and names a file which is not an archive.
func (f *FS) resolve(ctx context.Context, name string) (target, error) {
	name = entry.Clean(name)

	c, err := f.pace.Controller(f.root)
	if err != nil {
		return target{}, fmt.Errorf("(vfs-resolve) %w", err)
	}

	t := target{c: c, point: f.root}
	if name == "" {
		return t, nil
	}

	elems := strings.Split(name, entry.Separator)
	start := 0

	for i, elem := range elems {
		d, ok := f.registry.Detect(elem)
		if !ok {
			continue
		}

		inner := entry.Join(elems[start : i+1]...)

		nested, ok, err := f.nested(ctx, t, inner, d, i == len(elems)-1)
		if err != nil {
			return target{}, err
		}
		if !ok {
			continue
		}

		t = nested
		start = i + 1
	}

	t.name = entry.Join(elems[start:]...)

	return t, nil
}

// nested returns the root of the file system stored as inner in the file
// system of parent. ok is false if inner is to be treated as a plain entry.
func (f *FS) nested(ctx context.Context, parent target, inner string, d driver.Driver, last bool) (target, bool, error) {
	e, err := parent.c.Stat(ctx, inner)
	if err != nil {
		return target{}, false, fmt.Errorf("(vfs-resolve) %w", err)
	}
	if e != nil && e.Type() != entry.File {
		return target{}, false, nil
	}

	point, err := mount.New(d.Scheme(), parent.point, inner)
	if err != nil {
		return target{}, false, fmt.Errorf("(vfs-resolve) %w", err)
	}

	c, err := f.pace.Controller(point)
	if err != nil {
		return target{}, false, fmt.Errorf("(vfs-resolve) %w", err)
	}

	if e != nil && last {
		if _, err := c.Stat(ctx, ""); errors.Is(err, driver.ErrNotArchive) {
			return target{}, false, nil
		} else if err != nil {
			return target{}, false, fmt.Errorf("(vfs-resolve) %w", err)
		}
	}

	return target{c: c, point: point}, true, nil
}
