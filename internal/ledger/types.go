package ledger

import (
	"fmt"
	"time"

	"semefo/internal/media"
)

// JobState is the ledger's job lifecycle value.
type JobState string

const (
	JobPending    JobState = "pendiente"
	JobProcessing JobState = "procesando"
	JobCompleted  JobState = "completado"
	JobError      JobState = "error"
)

// JobID identifies a ledger job row.
type JobID int64

// JobUpdate changes a job's state. Result accompanies completado only and
// Error accompanies error only.
type JobUpdate struct {
	ID     JobID
	State  JobState
	Result string
	Error  string
}

// Validate enforces the state/payload pairing before anything goes on the wire.
func (u JobUpdate) Validate() error {
	if u.ID <= 0 {
		return fmt.Errorf("job id must be positive, got %d", u.ID)
	}
	switch u.State {
	case JobPending, JobProcessing:
		if u.Result != "" || u.Error != "" {
			return fmt.Errorf("state %s carries no result or error", u.State)
		}
	case JobCompleted:
		if u.Error != "" {
			return fmt.Errorf("completed job cannot carry an error")
		}
	case JobError:
		if u.Result != "" {
			return fmt.Errorf("failed job cannot carry a result")
		}
		if u.Error == "" {
			return fmt.Errorf("failed job requires an error message")
		}
	default:
		return fmt.Errorf("unknown job state %q", u.State)
	}
	return nil
}

// HeartbeatPayload is the liveness record posted by the daemon.
type HeartbeatPayload struct {
	Worker string `json:"worker"`
	Host   string `json:"host"`
	Queue  string `json:"queue,omitempty"`
	PID    int    `json:"pid"`
	Status string `json:"status"`
}

type createJobRequest struct {
	Expediente string     `json:"numero_expediente"`
	SessionID  int64      `json:"id_sesion"`
	Kind       media.Kind `json:"tipo"`
	Filename   string     `json:"archivo"`
	State      JobState   `json:"estado"`
	Result     *string    `json:"resultado"`
	Error      *string    `json:"error"`
}

type createJobResponse struct {
	JobID JobID `json:"job_id"`
}

type updateJobRequest struct {
	State  JobState `json:"estado,omitempty"`
	Result string   `json:"resultado,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type sessionFile struct {
	Kind string `json:"tipo_archivo"`
}

type registerFileRequest struct {
	SessionID     int64      `json:"sesion_id"`
	Kind          media.Kind `json:"tipo_archivo"`
	OriginalPath  string     `json:"ruta_original"`
	ConvertedPath string     `json:"ruta_convertida"`
	State         string     `json:"estado"`
	Complete      bool       `json:"conversion_completa"`
}

type finalizeFileRequest struct {
	State         string    `json:"estado"`
	Message       string    `json:"mensaje"`
	FinishedAt    time.Time `json:"fecha_finalizacion"`
	ConvertedPath string    `json:"ruta_convertida"`
	Complete      bool      `json:"conversion_completa"`
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}
