package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueTask describes a queue entry in a transport-friendly format.
type QueueTask struct {
	ID            int64  `json:"id"`
	Expediente    string `json:"expediente"`
	SessionID     int64  `json:"sessionId"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"maxAttempts"`
	LastState     string `json:"lastState,omitempty"`
	JobID         int64  `json:"jobId,omitempty"`
	ArtifactPath  string `json:"artifactPath,omitempty"`
	ErrorKind     string `json:"errorKind,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	NextAttemptAt string `json:"nextAttemptAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	BusyWorkers int            `json:"busyWorkers"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastTask    *QueueTask     `json:"lastTask,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	StorageRoot  string             `json:"storageRoot"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// EnqueueRequest asks the daemon to assemble one session kind.
type EnqueueRequest struct {
	Expediente string `json:"numero_expediente"`
	SessionID  int64  `json:"id_sesion"`
	Kind       string `json:"kind"`
}

// EnqueueResponse reports the task that now owns the key.
type EnqueueResponse struct {
	Task    QueueTask `json:"task"`
	Created bool      `json:"created"`
}

// RetryRequest selects failed tasks to retry. An empty list retries all.
type RetryRequest struct {
	IDs []int64 `json:"ids"`
}

// CountResponse reports how many tasks an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// QueueListResponse wraps a collection of queue tasks for API responses.
type QueueListResponse struct {
	Tasks []QueueTask `json:"tasks"`
}

// QueueTaskResponse wraps a single queue task.
type QueueTaskResponse struct {
	Task QueueTask `json:"task"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
