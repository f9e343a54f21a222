package domain

import (
	"errors"
	"time"
)

type TaskType string

const (
	TaskUpdate     TaskType = "update"
	TaskDelete     TaskType = "delete"
	TaskRebuild    TaskType = "rebuild"
	TaskOptimize   TaskType = "optimize"
	TaskProcessAll TaskType = "process_all"
)

// ClusterWide reports whether the task targets a whole index rather than a
// single object. Such tasks carry no object type.
func (t TaskType) ClusterWide() bool {
	return t == TaskRebuild || t == TaskOptimize
}

func (t TaskType) Valid() bool {
	switch t {
	case TaskUpdate, TaskDelete, TaskRebuild, TaskOptimize, TaskProcessAll:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusReady TaskStatus = "ready"
	StatusError TaskStatus = "error"
)

const (
	PriorityDefault = 0
	PriorityHigh    = 1
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNoIndexer    = errors.New("no indexer registered for object type")
	ErrInvalidTask  = errors.New("invalid task")
)

// PriorityFor derives the priority of a new task from its type.
func PriorityFor(t TaskType) int {
	if t == TaskRebuild {
		return PriorityHigh
	}
	return PriorityDefault
}

type TaskRecord struct {
	ID              int64      `json:"id"`
	TaskType        TaskType   `json:"task_type"`
	ObjectType      string     `json:"object_type"`
	ObjectField     string     `json:"object_field"`
	Value           string     `json:"value"`
	RelatedObjectID int64      `json:"related_object_id"`
	Priority        int        `json:"priority"`
	ServerName      string     `json:"server_name,omitempty"`
	Status          TaskStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CreationRequest is the caller-facing shape a TaskRecord is derived from.
type CreationRequest struct {
	TaskType        TaskType `json:"task_type"`
	ObjectType      string   `json:"object_type"`
	ObjectField     string   `json:"object_field"`
	Value           string   `json:"value"`
	RelatedObjectID int64    `json:"related_object_id"`
}

// NewTaskRecord builds a ready record for the given node. serverName is empty
// when the cluster shares its index storage.
func NewTaskRecord(req CreationRequest, serverName string, now time.Time) TaskRecord {
	objectType := req.ObjectType
	if req.TaskType.ClusterWide() {
		objectType = ""
	}
	return TaskRecord{
		TaskType:        req.TaskType,
		ObjectType:      objectType,
		ObjectField:     req.ObjectField,
		Value:           req.Value,
		RelatedObjectID: req.RelatedObjectID,
		Priority:        PriorityFor(req.TaskType),
		ServerName:      serverName,
		Status:          StatusReady,
		CreatedAt:       now,
	}
}
