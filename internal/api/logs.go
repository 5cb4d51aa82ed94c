package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/zba/internal/api/models"
	"github.com/smazurov/zba/internal/logging"
)

// registerLogRoutes exposes the master's in-memory log ring buffer. Worker
// output is included because the master re-logs it.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent log records held by the master",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		entries := []models.LogEntry{}
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, e := range buffer.Tail(input.Limit) {
				entries = append(entries, models.LogEntry{
					Timestamp:  e.Timestamp,
					Level:      e.Level,
					Module:     e.Module,
					Message:    e.Message,
					Attributes: e.Attributes,
				})
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})
}
