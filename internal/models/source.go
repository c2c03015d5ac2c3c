package models

// Source cites a knowledge-base document backing an assistant message.
// PresignedURL, when set, is a time-limited direct link to the document;
// SourceID and Location allow one to be requested later.
type Source struct {
	SourceID     string `json:"sourceId,omitempty"`
	Filename     string `json:"filename"`
	URL          string `json:"url,omitempty"`
	Location     string `json:"s3Uri,omitempty"`
	PresignedURL string `json:"presignedUrl,omitempty"`
}
