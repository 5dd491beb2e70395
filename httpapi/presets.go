package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nutrilog"
)

type presetResponse struct {
	nutrilog.MealPreset
	Totals   nutrilog.DailyNutritionSummary `json:"totals"`
	Failures []itemFailure                  `json:"failures,omitempty"`
}

func presetView(p nutrilog.MealPreset) presetResponse {
	return presetResponse{MealPreset: p, Totals: p.Totals()}
}

// savePreset stores a named preset. Entries come either ready made or from a
// meal description resolved the same way a text meal is.
func (s *Server) savePreset(c *gin.Context) {
	var req struct {
		Name    string                   `json:"name"`
		Text    string                   `json:"text"`
		Entries []nutrilog.ResolvedEntry `json:"entries"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or entries is required"})
		return
	}

	entries := req.Entries
	var failures []itemFailure
	if strings.TrimSpace(req.Text) != "" {
		res, err := s.resolver.ResolveText(c.Request.Context(), req.Text)
		if err != nil {
			writeError(c, err)
			return
		}
		entries, failures = res.Entries(), failuresOf(res)
		if len(entries) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "no valid food items",
				"request_id": res.RequestID,
				"failures":   failures,
			})
			return
		}
	}

	saved, err := s.store.SavePreset(c.Request.Context(), nutrilog.MealPreset{Name: req.Name, Entries: entries})
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("HTTP: Preset saved", "name", saved.Name, "entries", len(saved.Entries))

	resp := presetView(saved)
	resp.Failures = failures
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) listPresets(c *gin.Context) {
	presets, err := s.store.ListPresets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]presetResponse, len(presets))
	for i, p := range presets {
		out[i] = presetView(p)
	}
	c.JSON(http.StatusOK, gin.H{"presets": out})
}

func (s *Server) getPreset(c *gin.Context) {
	preset, ok := s.findPreset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, presetView(preset))
}

func (s *Server) deletePreset(c *gin.Context) {
	name := c.Param("name")
	deleted, err := s.store.DeletePreset(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "preset " + name + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// stagePreset puts a saved preset up for confirmation like a resolved meal.
func (s *Server) stagePreset(c *gin.Context) {
	preset, ok := s.findPreset(c)
	if !ok {
		return
	}
	s.stageEntries(c, "", preset.Entries, nil)
}

func (s *Server) findPreset(c *gin.Context) (nutrilog.MealPreset, bool) {
	name := c.Param("name")
	preset, found, err := s.store.GetPreset(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return preset, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "preset " + name + " not found"})
		return preset, false
	}
	return preset, true
}
