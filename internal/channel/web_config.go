package channel

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"

	"linepreview/internal/config"
)

// handleGetConfig returns the current config with secrets masked.
func (w *Web) handleGetConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.RLock()
	cfg := w.cfg
	w.cfgMu.RUnlock()

	if cfg == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not loaded"})
		return
	}
	writeJSON(rw, http.StatusOK, config.Sanitize(cfg))
}

// handleUpdateConfig sets one value by dotted path, e.g.
// {"path": "preview.botName", "value": "Shop"}. Changes are in memory until
// saved and take effect on the next start.
func (w *Web) handleUpdateConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()

	if w.cfg == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not loaded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}

	var update struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(body, &update); err != nil || update.Path == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": `expected {"path": ..., "value": ...}`})
		return
	}

	// Apply to a copy so a rejected value leaves the live config untouched.
	candidate := *w.cfg
	candidate.Preview.ScriptURLs = slices.Clone(w.cfg.Preview.ScriptURLs)
	candidate.Preview.LanguageIDs = slices.Clone(w.cfg.Preview.LanguageIDs)
	if err := config.SetByPath(&candidate, update.Path, update.Value); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := config.Validate(&candidate); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "validation: " + err.Error()})
		return
	}
	*w.cfg = candidate

	w.logger.Info("config updated via path", "path", update.Path)
	writeJSON(rw, http.StatusOK, map[string]string{"status": "updated", "path": update.Path})
}

// handleSaveConfig persists the in-memory config to disk.
func (w *Web) handleSaveConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()

	if w.cfg == nil || w.cfgPath == "" {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not available"})
		return
	}
	if err := config.Save(w.cfgPath, w.cfg); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "save failed: " + err.Error()})
		return
	}

	w.logger.Info("config saved to disk", "path", w.cfgPath)
	writeJSON(rw, http.StatusOK, map[string]string{"status": "saved", "path": w.cfgPath})
}
