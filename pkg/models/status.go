package models

// ResultStatus represents the terminal state of one processed row
type ResultStatus string

const (
	StatusUnset   ResultStatus = ""        // Zero value = unset/unknown
	StatusPending ResultStatus = "pending" // Row queued but not processed
	StatusSuccess ResultStatus = "success" // Metadata extracted
	StatusFailed  ResultStatus = "failed"  // Terminal failure, Reason set
)

// String implements fmt.Stringer for logging
func (s ResultStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ResultStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true once a row can no longer change state
func (s ResultStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}
