package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssetsStoresImagesAndDeflatesText(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "Order1001_Map.jpg", MIME: "image/jpeg", Data: []byte("jpeg")},
		{Filename: "metadata.json", MIME: "application/json", Data: []byte(`{"dpi":300}`)},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 files, got %d", len(zr.File))
	}
	if zr.File[0].Method != zip.Store {
		t.Fatalf("expected jpeg to be stored, got method %d", zr.File[0].Method)
	}
	if zr.File[1].Method != zip.Deflate {
		t.Fatalf("expected json to be deflated, got method %d", zr.File[1].Method)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"dpi":300}` {
		t.Fatalf("unexpected metadata %q", body)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{{Filename: "a.jpg"}, {Filename: "/a.jpg"}})
	if err == nil {
		t.Fatal("expected duplicate filename error")
	}
}
