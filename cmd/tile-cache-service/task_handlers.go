package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/geoyee/globetile/internal/model"
)

// PrefetchRequest starts a prefetch task.
type PrefetchRequest struct {
	ID       string   `json:"id,omitempty"`
	MinLon   *float64 `json:"min_lon"`
	MinLat   *float64 `json:"min_lat"`
	MaxLon   *float64 `json:"max_lon"`
	MaxLat   *float64 `json:"max_lat"`
	MinLevel int      `json:"min_level,omitempty"`
	MaxLevel *int     `json:"max_level,omitempty"`
}

// Sector returns the requested sector, or an error naming a missing bound.
func (r *PrefetchRequest) Sector() (model.Sector, error) {
	for name, v := range map[string]*float64{"min_lon": r.MinLon, "min_lat": r.MinLat, "max_lon": r.MaxLon, "max_lat": r.MaxLat} {
		if v == nil {
			return model.Sector{}, fmt.Errorf("%s is required", name)
		}
	}
	s := model.Sector{MinLat: *r.MinLat, MaxLat: *r.MaxLat, MinLon: *r.MinLon, MaxLon: *r.MaxLon}
	return s, s.Validate()
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodPost) {
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	sector, err := req.Sector()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	maxLevel := s.pipeline.Tiling.NumLevels() - 1
	if req.MaxLevel != nil {
		maxLevel = *req.MaxLevel
	}
	if req.MinLevel < 0 || maxLevel >= s.pipeline.Tiling.NumLevels() || req.MinLevel > maxLevel {
		s.respondError(w, http.StatusBadRequest, "invalid level range %d..%d", req.MinLevel, maxLevel)
		return
	}

	taskID := req.ID
	if taskID == "" {
		taskID = fmt.Sprintf("task_%d", time.Now().UnixNano())
	}
	task, ok := s.taskManager.CreateTask(taskID, sector, req.MinLevel, maxLevel)
	if !ok {
		s.respondError(w, http.StatusConflict, "Task %s already exists", taskID)
		return
	}

	s.taskManager.Start(context.Background(), task)

	s.log.Info("prefetch task created", "op", "prefetch", "task", taskID, "sector", sector.String(),
		"min_level", req.MinLevel, "max_level", maxLevel)
	s.respondJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Message: "Prefetch task created",
		Data:    map[string]string{"task_id": taskID},
	})
}

// taskFromPath resolves the task named by the path after prefix.
func (s *Server) taskFromPath(w http.ResponseWriter, r *http.Request, prefix string) (*Task, bool) {
	taskID := r.URL.Path[len(prefix):]
	if taskID == "" {
		s.respondError(w, http.StatusBadRequest, "Task ID is required")
		return nil, false
	}
	task, ok := s.taskManager.GetTask(taskID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Task not found")
		return nil, false
	}
	return task, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	task, ok := s.taskFromPath(w, r, "/api/status/")
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: task.View()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodPost) {
		return
	}
	task, ok := s.taskFromPath(w, r, "/api/stop/")
	if !ok {
		return
	}
	if !task.Stop() {
		s.respondError(w, http.StatusBadRequest, "Task is not running (current status: %s)", task.View().Status)
		return
	}
	s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Task stopped"})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	tasks := s.taskManager.ListTasks()
	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, task.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: views})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodDelete) {
		return
	}
	taskID := r.URL.Path[len("/api/delete/"):]
	if taskID == "" {
		s.respondError(w, http.StatusBadRequest, "Task ID is required")
		return
	}
	if !s.taskManager.DeleteTask(taskID) {
		s.respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Task deleted"})
}
