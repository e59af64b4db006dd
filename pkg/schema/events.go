// pkg/schema/events.go
package schema

// ItemResult is the per-image outcome of a finished batch, mirroring the
// columns of the archive's _report.tsv entry.
type ItemResult struct {
	SourceName string  `json:"source_name"`
	OutputName string  `json:"output_name,omitempty"`
	Status     string  `json:"status"`
	SourceW    int     `json:"src_w,omitempty"`
	SourceH    int     `json:"src_h,omitempty"`
	OutputW    int     `json:"out_w,omitempty"`
	OutputH    int     `json:"out_h,omitempty"`
	Quality    int     `json:"quality,omitempty"`
	SizeMB     float64 `json:"size_mb,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// BatchDone is published once per batch when it reaches a terminal state.
type BatchDone struct {
	JobID            string       `json:"job_id"`
	Status           string       `json:"status"`
	Total            int          `json:"total"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	Skipped          int          `json:"skipped"`
	Warnings         int          `json:"warnings"`
	Message          string       `json:"message"`
	ArchivePath      string       `json:"archive_path,omitempty"`
	Results          []ItemResult `json:"results,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	HappenedAt       int64        `json:"happened_at"`
}
