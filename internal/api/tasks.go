package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/zba/internal/api/models"
	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/pkg/task"
)

func (s *Server) registerTaskRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Supervisor Status",
		Description: "Master status with every task and its live workers",
		Tags:        []string{"tasks"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		if s.options.Controller == nil {
			return nil, huma.Error503ServiceUnavailable("supervisor not attached")
		}
		return &models.StatusResponse{Body: s.options.Controller.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/api/tasks/{name}",
		Summary:     "Task Status",
		Description: "Desired count and live workers of one task",
		Tags:        []string{"tasks"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *models.TaskInput) (*models.TaskResponse, error) {
		if s.options.Controller == nil {
			return nil, huma.Error503ServiceUnavailable("supervisor not attached")
		}
		for _, t := range s.options.Controller.Snapshot().Tasks {
			if t.Name == input.Name {
				return &models.TaskResponse{Body: t}, nil
			}
		}
		return nil, huma.Error404NotFound("task not found: " + input.Name)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scale-task",
		Method:      http.MethodPut,
		Path:        "/api/tasks/{name}/count",
		Summary:     "Scale Task",
		Description: "Queue a change of the task's desired worker count",
		Tags:        []string{"tasks"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 500, 503},
	}, func(_ context.Context, input *models.ScaleRequest) (*models.ScaleResponse, error) {
		if s.options.Controller == nil {
			return nil, huma.Error503ServiceUnavailable("supervisor not attached")
		}
		count := codec.ClampCount(input.Body.Count)
		if err := s.options.Controller.SetProcessCount(input.Name, count); err != nil {
			if errors.Is(err, task.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found: " + input.Name)
			}
			return nil, huma.Error500InternalServerError("failed to queue scale request", err)
		}
		s.logger.Info("Scale requested via API", "task", input.Name, "count", count)
		return &models.ScaleResponse{
			Body: models.ScaleData{
				TaskName: input.Name,
				Count:    count,
				Message:  "Scale request queued",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reload",
		Method:      http.MethodPost,
		Path:        "/api/reload",
		Summary:     "Reload",
		Description: "Ask every reloadable worker to exit so it is respawned",
		Tags:        []string{"tasks"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(_ context.Context, _ *struct{}) (*models.ReloadResponse, error) {
		if s.options.Controller == nil {
			return nil, huma.Error503ServiceUnavailable("supervisor not attached")
		}
		if err := s.options.Controller.Reload(); err != nil {
			return nil, huma.Error500InternalServerError("failed to request reload", err)
		}
		return &models.ReloadResponse{Body: models.ReloadData{Message: "Reload requested"}}, nil
	})
}
