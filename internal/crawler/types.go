package crawler

import (
	"net/http"
	"time"
)

// ClaimResult is the outcome of an insert-if-absent claim against the frontier.
type ClaimResult string

// Claim results returned by FrontierStore.TryClaim.
const (
	ClaimAcquired         ClaimResult = "claimed"
	ClaimAlreadyClaimed   ClaimResult = "already_claimed"
	ClaimAlreadyCompleted ClaimResult = "already_completed"
)

// Acquired reports whether the caller now owns the URL.
func (r ClaimResult) Acquired() bool {
	return r == ClaimAcquired
}

// URLStatus tags the lifecycle position of a URL inside a domain frontier.
// Absence of a URL from the frontier means it is unclaimed.
type URLStatus string

// URL status values persisted by frontier stores.
const (
	StatusClaimed   URLStatus = "claimed"
	StatusCompleted URLStatus = "completed"
)

// URLState is the stored state of a single normalized URL.
type URLState struct {
	Status URLStatus `json:"status"`
	Links  []string  `json:"links,omitempty"`
}

// DomainRecord is the frontier of one crawled domain.
type DomainRecord struct {
	Domain      string              `json:"domain"`
	URLStates   map[string]URLState `json:"url_states"`
	LastUpdated time.Time           `json:"last_updated"`
}

// Completed returns the number of URLs that reached the completed state.
func (r DomainRecord) Completed() int {
	n := 0
	for _, state := range r.URLStates {
		if state.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// Task is one unit of queued crawl work.
type Task struct {
	PageURL string `json:"page_url"`
}

// Delivery is a raw task payload handed out by a TaskSource.
type Delivery struct {
	Payload  []byte
	Received time.Time
	// Attributes carries transport metadata such as trace context.
	Attributes map[string]string
}

// Links groups classified hyperlinks found on a page.
type Links struct {
	Internal []string `json:"internal"`
	External []string `json:"external"`
}

// PageResult is the structured output of a successful page fetch.
type PageResult struct {
	URL   string   `json:"url"`
	Links Links    `json:"links"`
	Text  []string `json:"text"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OutcomeStatus is the terminal status of a single task invocation.
type OutcomeStatus string

// Outcome statuses reported for every task.
const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeError     OutcomeStatus = "error"
)

// Outcome summarizes what happened to one task.
type Outcome struct {
	Status        OutcomeStatus `json:"status"`
	URL           string        `json:"url,omitempty"`
	Domain        string        `json:"domain,omitempty"`
	Claim         ClaimResult   `json:"claim,omitempty"`
	InternalLinks int           `json:"internal_links_found"`
	Queued        int           `json:"new_urls_queued"`
	Reason        string        `json:"reason,omitempty"`
	Duration      time.Duration `json:"-"`
}

// ArchiveRecord is the raw page result written to long-term storage.
type ArchiveRecord struct {
	PageURL   string     `json:"page_url"`
	Domain    string     `json:"-"`
	Timestamp time.Time  `json:"-"`
	Result    PageResult `json:"-"`
}
