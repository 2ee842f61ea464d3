package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mapengrave/internal/encode"
	"mapengrave/internal/export"
	"mapengrave/pkg/zip"
)

// ExportsCreate runs the export pipeline and returns the print file. With
// ?bundle=zip the file is returned together with its metadata.
func (a *App) ExportsCreate(w http.ResponseWriter, r *http.Request) {
	var req export.Request
	if !a.decode(w, r, &req) {
		return
	}
	start := time.Now()
	res, err := a.Exports.Run(r.Context(), req)
	a.observe(err, time.Since(start))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Export-ID", res.ExportID)

	if strings.EqualFold(r.URL.Query().Get("bundle"), "zip") {
		meta, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			a.fail(w, r, fmt.Errorf("handlers: encode metadata: %w", err))
			return
		}
		archive, err := zip.ArchiveAssets([]zip.Asset{
			{Filename: res.Filename, MIME: res.MIME, Data: res.Data},
			{Filename: "metadata.json", MIME: "application/json", Data: meta},
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		name := strings.TrimSuffix(res.Filename, ".jpg") + ".zip"
		a.attachment(w, "application/zip", name, archive)
		return
	}
	a.attachment(w, res.MIME, res.Filename, res.Data)
}

// ExportGet returns the export log entry for an id.
func (a *App) ExportGet(w http.ResponseWriter, r *http.Request) {
	if a.ExportLog == nil {
		a.error(w, http.StatusNotFound, "not_found", "export log is not configured")
		return
	}
	rec, err := a.ExportLog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}

// ExportFile streams a stored print file again.
func (a *App) ExportFile(w http.ResponseWriter, r *http.Request) {
	if a.ExportLog == nil || a.Artifacts == nil {
		a.error(w, http.StatusNotFound, "not_found", "export storage is not configured")
		return
	}
	rec, err := a.ExportLog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rec.StorageKey == "" {
		a.error(w, http.StatusNotFound, "not_found", "export file was not stored")
		return
	}
	data, err := a.Artifacts.Read(r.Context(), rec.StorageKey)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Export-ID", rec.ID)
	a.attachment(w, encode.MIMEType, rec.Filename, data)
}

// OrderExports lists the export log entries of one order number.
func (a *App) OrderExports(w http.ResponseWriter, r *http.Request) {
	if a.ExportLog == nil {
		a.error(w, http.StatusNotFound, "not_found", "export log is not configured")
		return
	}
	items, err := a.ExportLog.ListByOrder(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) attachment(w http.ResponseWriter, mime, filename string, data []byte) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
