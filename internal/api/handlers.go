package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lodmesh/internal/geom"
	"lodmesh/internal/render"
	"lodmesh/internal/scene"
)

const (
	maxBodyBytes   = 64 * 1024
	maxPreviewSize = 2048
)

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	// Lock-free snapshot; polling never contends with the frame loop.
	snapshot := h.engine.GetSnapshot()
	writeJSON(w, map[string]interface{}{
		"tick":           snapshot.Tick,
		"tickDurationMs": float64(snapshot.TickDuration.Microseconds()) / 1000,
		"viewer":         snapshot.Viewer,
		"lod":            snapshot.Stats,
		"meshes":         h.meshes.Stats(),
		"preview":        h.previews.Stats(),
		"eventLog":       h.engine.EventLogStats(),
		"rateLimit":      h.limiter.Stats(),
	})
}

func (h *routerHandlers) handleGetViewer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"position": h.engine.GetSnapshot().Viewer,
	})
}

func (h *routerHandlers) handleSetViewer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position []float64 `json:"position"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Position) != 3 {
		writeError(w, "position needs 3 components", http.StatusBadRequest)
		return
	}
	h.engine.SetViewer(geom.Vec3{req.Position[0], req.Position[1], req.Position[2]})
	writeJSON(w, map[string]interface{}{"success": true, "position": req.Position})
}

func (h *routerHandlers) handleListFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Fields())
}

func (h *routerHandlers) handleAddField(w http.ResponseWriter, r *http.Request) {
	var req scene.FieldSpec
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	shape, pos, rot, err := req.Build()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := h.engine.AddField(shape, pos, rot)
	log.Printf("🔷 Field %d added via API (%s)", id, shape.Name())

	info, _ := h.engine.Field(id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(info)
}

func (h *routerHandlers) handleGetField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	info, found := h.engine.Field(id)
	if !found {
		writeError(w, "Field not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (h *routerHandlers) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req scene.FieldSpec
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	pos, rot, err := req.Pose()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.engine.UpdateField(id, pos, rot) {
		writeError(w, "Field not found", http.StatusNotFound)
		return
	}
	info, _ := h.engine.Field(id)
	writeJSON(w, info)
}

func (h *routerHandlers) handleRemoveField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.engine.RemoveField(id) {
		writeError(w, "Field not found", http.StatusNotFound)
		return
	}
	log.Printf("🔷 Field %d removed via API", id)
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleListChunks(w http.ResponseWriter, r *http.Request) {
	chunks := h.engine.Chunks()
	if r.URL.Query().Get("presented") == "true" {
		visible := chunks[:0]
		for _, c := range chunks {
			if c.Presented {
				visible = append(visible, c)
			}
		}
		chunks = visible
	}
	writeJSON(w, chunks)
}

func (h *routerHandlers) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	info, found := h.engine.Chunk(id)
	if !found {
		writeError(w, "Chunk not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (h *routerHandlers) handleGetMesh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, found := h.meshes.Mesh(id)
	if !found {
		writeError(w, "Mesh not presented", http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func (h *routerHandlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	plane, err := render.ParsePlane(r.URL.Query().Get("plane"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := render.PreviewKey{Plane: plane, Size: render.DefaultPreviewOptions().Size}

	if s := r.URL.Query().Get("size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 16 || size > maxPreviewSize {
			writeError(w, fmt.Sprintf("size must be between 16 and %d", maxPreviewSize), http.StatusBadRequest)
			return
		}
		key.Size = size
	}

	seq, meshes := h.meshes.Snapshot()
	key.Sequence = seq
	png, err := h.previews.Render(key, meshes)
	if err != nil {
		log.Printf("⚠️ Preview encode failed: %v", err)
		writeError(w, "Preview failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (h *routerHandlers) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.exportDir == "" {
		writeError(w, "Export disabled", http.StatusNotFound)
		return
	}

	tick := h.engine.Tick()
	snap := render.NewSnapshot(tick, h.meshes.Meshes())
	name := fmt.Sprintf("lod-%d-%d.zst", tick, time.Now().Unix())
	path := filepath.Join(h.exportDir, name)

	if err := render.WriteSnapshot(path, snap); err != nil {
		log.Printf("⚠️ Export failed: %v", err)
		writeError(w, "Export failed", http.StatusInternalServerError)
		return
	}
	log.Printf("💾 Exported %d meshes to %s", snap.Header.Meshes, path)

	writeJSON(w, map[string]interface{}{
		"success": true,
		"path":    path,
		"header":  snap.Header,
	})
}

// Helper functions (package-level for reuse)

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
