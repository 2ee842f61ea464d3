// Package zip bundles export files for download.
package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// ArchiveAssets writes assets into a single archive in order. JPEG and PNG
// payloads are stored as-is, everything else is deflated.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name := strings.TrimLeft(asset.Filename, "/")
		if name == "" {
			return nil, errors.New("zip: asset without filename")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("zip: duplicate filename %q", name)
		}
		seen[name] = struct{}{}
		hdr := &zip.FileHeader{Name: name, Method: method(asset.MIME), Modified: asset.Modified}
		if hdr.Modified.IsZero() {
			hdr.Modified = time.Now()
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func method(mime string) uint16 {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/png":
		return zip.Store
	}
	return zip.Deflate
}
