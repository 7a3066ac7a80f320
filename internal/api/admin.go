package api

import "net/http"

func handleOptimize(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "resolver is not configured", false, nil)
		return
	}
	removed := deps.Resolver.Optimize()
	writeJSON(w, http.StatusOK, map[string]any{
		"removed_patterns": removed,
		"stats":            deps.Resolver.Stats(),
	})
}

func handleClearCache(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "resolver is not configured", false, nil)
		return
	}
	removed := deps.Resolver.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "cleared",
		"removed_entries": removed,
	})
}

func handleSave(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil || deps.Persister == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence is not configured", false, nil)
		return
	}
	state := deps.Resolver.Snapshot()
	if err := deps.Persister.Save(r.Context(), state); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SAVE_FAILED", "failed to save knowledge", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "saved",
		"patterns":      len(state.Patterns),
		"cache_entries": len(state.ExactCache),
		"corrections":   len(state.Corrections),
	})
}

func handleArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil || deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "correction archiving is not configured", false, nil)
		return
	}
	records := deps.Resolver.Corrections(0)
	if len(records) == 0 {
		writeError(r.Context(), w, http.StatusConflict, "NOTHING_TO_ARCHIVE", "no corrections recorded yet", false, nil)
		return
	}
	key, err := deps.Archiver.Archive(r.Context(), records)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ARCHIVE_FAILED", "failed to archive corrections", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "archived",
		"key":     key,
		"records": len(records),
	})
}
