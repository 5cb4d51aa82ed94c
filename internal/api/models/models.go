package models

import (
	"time"

	"github.com/smazurov/zba/internal/process"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build date"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.25.0" doc:"Go version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Build platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models
type StatusResponse struct {
	Body process.Snapshot
}

type TaskInput struct {
	Name string `path:"name" example:"mailer" doc:"Task name"`
}

type TaskResponse struct {
	Body process.TaskSnapshot
}

type ScaleRequest struct {
	Name string `path:"name" example:"mailer" doc:"Task name"`
	Body struct {
		Count int `json:"count" minimum:"1" maximum:"1000" example:"4" doc:"Desired number of workers"`
	}
}

type ScaleData struct {
	TaskName string `json:"task_name" example:"mailer" doc:"Task name"`
	Count    int    `json:"count" example:"4" doc:"Requested worker count"`
	Message  string `json:"message" example:"Scale request queued" doc:"Status message"`
}

type ScaleResponse struct {
	Body ScaleData
}

type ReloadData struct {
	Message string `json:"message" example:"Reload requested" doc:"Status message"`
}

type ReloadResponse struct {
	Body ReloadData
}

// Log models
type LogsInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of entries"`
}

type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Record time"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Logger module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Most recent log entries, oldest first"`
	Count   int        `json:"count" example:"100" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}
