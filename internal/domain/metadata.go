package domain

import "time"

// FetchOutcome is the recorded result of a metadata fetch.
type FetchOutcome string

const (
	FetchSuccess    FetchOutcome = "SUCCESS"
	FetchNoMetadata FetchOutcome = "NO_METADATA"
	FetchFailed     FetchOutcome = "FAILED"
)

// DefaultPreviewType is the og:type used when the destination declares none.
const DefaultPreviewType = "website"

// PreviewFields are the values rendered into a crawler preview.
// Empty strings mean "not provided".
type PreviewFields struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Type        string `json:"type,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// Empty reports whether neither a title nor a description was found.
func (p PreviewFields) Empty() bool {
	return p.Title == "" && p.Description == ""
}

// LinkMetadata is the one-to-one preview record of a Link.
// It is written only by the metadata fetch job.
type LinkMetadata struct {
	LinkID int64
	PreviewFields

	Outcome FetchOutcome

	// FailureReason is set iff Outcome is FetchFailed.
	FailureReason string

	FetchedAt time.Time
}

// Usable reports whether the record may feed a preview.
func (m *LinkMetadata) Usable() bool {
	return m != nil && m.Outcome == FetchSuccess
}
