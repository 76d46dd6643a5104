package models

// InputRow is one record handed in by the reading collaborator: an ordinal
// position plus one or more candidate URLs. The first non-empty candidate is
// the one processed.
type InputRow struct {
	Index int
	URLs  []string
}

// FirstURL returns the first non-empty candidate URL, or ""
func (r InputRow) FirstURL() string {
	for _, u := range r.URLs {
		if u != "" {
			return u
		}
	}
	return ""
}

// MetadataRecord is the typed metadata extracted for a single video.
// Immutable once built; owned by the result it is attached to.
type MetadataRecord struct {
	PhotoID string `json:"photo_id"` // Canonical identifier, numeric when recoverable
	// IDNonNumeric marks records whose identifier could not be recovered in
	// the canonical all-digit form. Kept for auditing; never fails the record.
	IDNonNumeric bool `json:"id_non_numeric,omitempty"`

	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Caption    string `json:"caption"`

	FanCount        int64 `json:"fan_count"`
	CollectionCount int64 `json:"collection_count"`
	WorkCount       int64 `json:"work_count"`

	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	ViewCount    int64 `json:"view_count"`
	ShareCount   int64 `json:"share_count"`

	Duration int64 `json:"duration"` // Milliseconds
	Width    int64 `json:"width"`
	Height   int64 `json:"height"`

	// PublishTime is the calendar form of the millisecond publish timestamp.
	// When conversion fails it holds the raw numeric string instead.
	PublishTime string `json:"publish_time"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

// ProcessingResult is the per-input-row outcome handed to collaborators.
// Invariant: Status == success iff Record is non-nil and VideoID is non-empty;
// Status == failed iff Reason is non-empty and Record is nil.
type ProcessingResult struct {
	Row       int             `json:"row"`
	SourceURL string          `json:"source_url"`
	VideoID   string          `json:"video_id,omitempty"` // Resolved identifier, empty if resolution failed
	Status    ResultStatus    `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Record    *MetadataRecord `json:"record,omitempty"`
}

// Canonical external failure reasons. The pipeline deliberately collapses
// HTTP-error, empty-payload and malformed-payload causes into one reported
// category; the upstream service does not reliably distinguish deleted,
// private and rate-limited responses.
const (
	ReasonContentGone   = "content not found or removed"
	ReasonResolveFailed = "unable to resolve video link"
	ReasonNoURL         = "no source URL provided"
	ReasonCancelled     = "processing cancelled"
)

// Progress is one incremental progress event: completed successes vs total rows.
// Completed is monotonically non-decreasing over a batch.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// BatchSummary aggregates a finished batch for logging/reporting
type BatchSummary struct {
	Total      int   `json:"total"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Resumed    int   `json:"resumed"` // Served from the result store without fetching
	DurationMS int64 `json:"duration_ms"`
}
