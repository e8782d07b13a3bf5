package assets

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// ArchiveName is the attachment file name of an item's download.
func ArchiveName(it *catalog.Item) string {
	return it.ID + ".zip"
}

// prebuiltKey is where a ready-made archive for an item is looked up.
func prebuiltKey(k catalog.Key) string {
	return k.Collection + "/" + k.ID + ".zip"
}

type entry struct {
	name string
	obj  *Object
}

// Archive is an item download with every source already opened, so a
// missing or forbidden object is reported before any byte is written.
type Archive struct {
	prebuilt *Object
	entries  []entry
}

// OpenArchive prepares the download of it. A prebuilt archive stored under
// "<collection>/<id>.zip" is served as is; otherwise the item's stored
// assets are packaged. Assets published as http(s) URLs are not part of
// the download.
func OpenArchive(ctx context.Context, store Store, it *catalog.Item) (*Archive, error) {
	obj, err := store.Open(ctx, prebuiltKey(it.Key()))
	switch {
	case err == nil:
		return &Archive{prebuilt: obj}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	keys := make([]string, 0, len(it.Assets))
	for k, ref := range it.Assets {
		if !isRemote(ref.Href) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: item %s has no stored assets", ErrNotFound, it.Key())
	}
	slices.Sort(keys)

	a := &Archive{}
	used := make(map[string]bool, len(keys))
	for _, k := range keys {
		ref := it.Assets[k]
		obj, err := store.Open(ctx, ref.Href)
		if err != nil {
			a.Close()
			return nil, err
		}
		name := k + path.Ext(ref.Href)
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s-%d%s", k, i, path.Ext(ref.Href))
		}
		used[name] = true
		a.entries = append(a.entries, entry{name: name, obj: obj})
	}
	return a, nil
}

// WriteTo streams the archive to w and closes every source.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	defer a.Close()

	if a.prebuilt != nil {
		return io.Copy(w, a.prebuilt.Body)
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, e := range a.entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			return cw.n, fmt.Errorf("failed to add %s: %w", e.name, err)
		}
		if _, err := io.Copy(fw, e.obj.Body); err != nil {
			return cw.n, fmt.Errorf("failed to copy %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("failed to finish archive: %w", err)
	}
	return cw.n, nil
}

// Size is the archive length when known up front, or -1.
func (a *Archive) Size() int64 {
	if a.prebuilt != nil {
		return a.prebuilt.Size
	}
	return -1
}

// Close releases every source. It is safe to call more than once.
func (a *Archive) Close() {
	if a.prebuilt != nil {
		a.prebuilt.Body.Close()
		a.prebuilt = nil
	}
	for _, e := range a.entries {
		e.obj.Body.Close()
	}
	a.entries = nil
}

func isRemote(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
