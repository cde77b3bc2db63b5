package web

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthInfo holds runtime status for the health endpoint.
type HealthInfo struct {
	LLMModel        string     // from provider config
	SessionCount    func() int // callback to session store
	ActiveRuns      func() int // reasoning runs in flight
	MaxRuns         int64      // concurrent run cap
	SimilarityCache func() int // memoised similarity scores
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	info      HealthInfo
	startTime time.Time
}

// NewHealthHandler creates a health handler recording the server start time.
func NewHealthHandler(info HealthInfo) *HealthHandler {
	return &HealthHandler{info: info, startTime: time.Now()}
}

type healthResponse struct {
	Status     string           `json:"status"`
	UptimeSecs int64            `json:"uptime_seconds"`
	Components healthComponents `json:"components"`
}

type healthComponents struct {
	LLM       healthLLM       `json:"llm"`
	Reasoning healthReasoning `json:"reasoning"`
	Sessions  healthSessions  `json:"sessions"`
}

type healthLLM struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}
type healthReasoning struct {
	Active          int   `json:"active"`
	Capacity        int64 `json:"capacity"`
	SimilarityCache int   `json:"similarity_cache"`
}
type healthSessions struct {
	Active int `json:"active"`
}

func count(f func() int) int {
	if f == nil {
		return 0
	}
	return f()
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	llmStatus := "ok"
	if h.info.LLMModel == "" {
		llmStatus = "degraded"
	}
	active := count(h.info.ActiveRuns)

	status := "ok"
	switch {
	case llmStatus == "degraded":
		status = "degraded"
	case h.info.MaxRuns > 0 && int64(active) >= h.info.MaxRuns:
		status = "busy"
	}

	resp := healthResponse{
		Status:     status,
		UptimeSecs: int64(time.Since(h.startTime).Seconds()),
		Components: healthComponents{
			LLM: healthLLM{Status: llmStatus, Model: h.info.LLMModel},
			Reasoning: healthReasoning{
				Active:          active,
				Capacity:        h.info.MaxRuns,
				SimilarityCache: count(h.info.SimilarityCache),
			},
			Sessions: healthSessions{Active: count(h.info.SessionCount)},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
