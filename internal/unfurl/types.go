// Package unfurl defines core types shared across subsystems.
package unfurl

import "time"

// ContentType classifies the media carried by a post.
type ContentType string

// Content types reported by the scraping strategies.
const (
	ContentTypePhoto ContentType = "photo"
	ContentTypeVideo ContentType = "video"
	ContentTypeReel  ContentType = "reel"
	ContentTypeTV    ContentType = "tv"
)

// IsVideo reports whether the content type carries playable video.
func (c ContentType) IsVideo() bool {
	return c == ContentTypeVideo || c == ContentTypeReel || c == ContentTypeTV
}

// LinkReference identifies one shared link. CanonicalURL is the cache
// and deduplication identity; OriginalURL is what the chat message
// actually contained and keys the delivered unfurl map.
type LinkReference struct {
	OriginalURL  string
	CanonicalURL string
}

// PostRecord holds the normalized fields recovered for a post. Every
// field is optional: strategies return whatever they managed to
// extract and Merge combines partial records. Counter and timestamp
// fields use pointers so "absent" and "zero" stay distinguishable.
type PostRecord struct {
	URL         string
	PostID      string
	Username    string
	Caption     string
	Likes       *int
	Comments    *int
	ImageURL    string
	VideoURL    string
	ContentType ContentType
	IsVerified  bool
	Timestamp   *time.Time
}

// HasVideo reports whether the record should render as video content.
func (r PostRecord) HasVideo() bool {
	return r.VideoURL != "" || r.ContentType.IsVideo()
}

// HasMedia reports whether any media URL was recovered at all.
func (r PostRecord) HasMedia() bool {
	return r.ImageURL != "" || r.VideoURL != ""
}

// HasSignal reports whether the record carries anything worth
// rendering. Strategies that extract nothing report failure so the
// orchestrator can fall through.
func (r PostRecord) HasSignal() bool {
	return r.Username != "" || r.Caption != "" || r.HasMedia()
}

// ScrapeResult is the uniform outcome of one strategy invocation.
// It is never mutated after creation.
type ScrapeResult struct {
	Success  bool
	Record   *PostRecord
	Err      string
	Strategy string
	Elapsed  time.Duration
}

// Failure builds a failed result for the named strategy.
func Failure(strategy, errText string, elapsed time.Duration) ScrapeResult {
	return ScrapeResult{
		Strategy: strategy,
		Err:      errText,
		Elapsed:  elapsed,
	}
}

// EventLink is one link candidate from an inbound event.
type EventLink struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// InboundEvent is the already-verified payload handed over by the
// webhook/queue collaborator.
type InboundEvent struct {
	ConversationRef string      `json:"conversation_ref"`
	MessageRef      string      `json:"message_ref"`
	UnfurlRef       string      `json:"unfurl_ref"`
	Links           []EventLink `json:"links"`
}

// Block is one visual section of a rendered unfurl.
type Block struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

// Block types understood by the chat delivery contract.
const (
	BlockHeader  = "header"
	BlockCaption = "caption"
	BlockImage   = "image"
	BlockVideo   = "video"
	BlockContext = "context"
)

// RenderedUnfurl is the chat-platform-ready preview for one link.
type RenderedUnfurl struct {
	Color    string  `json:"color,omitempty"`
	Blocks   []Block `json:"blocks"`
	VideoURL string  `json:"video_url,omitempty"`
}

// OutcomeStatus summarizes how processing one event ended.
type OutcomeStatus string

// Outcome statuses reported by the pipeline.
const (
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeNoLinks   OutcomeStatus = "no_links"
	OutcomeNoUnfurls OutcomeStatus = "no_unfurls"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is returned by the pipeline for one processed event.
type Outcome struct {
	Status   OutcomeStatus
	Unfurled int
	Skipped  int
	ErrText  string
}

// IntPtr is a convenience for building optional counters.
func IntPtr(v int) *int { return &v }
