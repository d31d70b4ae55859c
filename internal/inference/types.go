package inference

// TaskState is the lifecycle state reported by the inference backend for a
// submitted job.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// HealthResponse is the backend's GET /api/health payload.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	GPUAvailable bool   `json:"gpu_available"`
	Device       string `json:"device"`
	Timestamp    string `json:"timestamp"`
}

// UploadResponse is the backend's POST /api/upload payload.
type UploadResponse struct {
	TaskID           string    `json:"task_id"`
	Status           TaskState `json:"status"`
	Message          string    `json:"message"`
	FileSize         int64     `json:"file_size"`
	OriginalFilename string    `json:"original_filename"`
}

// QualityScores groups the SQUIM estimates for one audio signal.
type QualityScores struct {
	STOI  float64 `json:"stoi_estimate"`
	PESQ  float64 `json:"pesq_estimate"`
	SISDR float64 `json:"si_sdr_estimate"`
	MOS   float64 `json:"mos_estimate"`
}

// DetailedScores carries the per-metric improvements plus the raw scores
// for the processed (pred) and original (mix) audio.
type DetailedScores struct {
	MOSImprovement   float64       `json:"mos_improvement"`
	STOIImprovement  float64       `json:"stoi_improvement"`
	PESQImprovement  float64       `json:"pesq_improvement"`
	SISDRImprovement float64       `json:"si_sdr_improvement"`
	PredQuality      QualityScores `json:"pred_quality"`
	MixQuality       QualityScores `json:"mix_quality"`
}

// TaskStatus is one snapshot of a backend task, as returned by
// GET /api/status/{task_id}. Result fields are only populated once the task
// completes; Error only when it fails.
type TaskStatus struct {
	TaskID           string    `json:"task_id"`
	Status           TaskState `json:"status"`
	Progress         int       `json:"progress"`
	Message          string    `json:"message"`
	EstimatedTime    *int      `json:"estimated_time,omitempty"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`

	AudioDuration      float64         `json:"audio_duration,omitempty"`
	ProcessingTime     float64         `json:"processing_time,omitempty"`
	DownloadURL        string          `json:"download_url,omitempty"`
	QualityImprovement float64         `json:"quality_improvement,omitempty"`
	DetailedScores     *DetailedScores `json:"detailed_scores,omitempty"`

	Error string `json:"error,omitempty"`
}

// apiError is the backend's error payload shape: {"error": "..."}.
type apiError struct {
	Error string `json:"error"`
}
