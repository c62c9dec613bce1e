package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Page is one page of results from a remote API.
type Page struct {
	// Items are the raw records fetched from the source. The orchestration
	// core never inspects them; it only counts them and hands them to Apply.
	Items []json.RawMessage

	// NextPageToken requests the following page when non-empty. An empty
	// token means this was the last page of the window.
	NextPageToken string

	// CandidateCursor is the executor's proposed resumption token for the
	// records on this page, typically the maximum updated-at timestamp seen.
	// The core keeps the maximum across all pages of a run and persists it
	// only when the run completes.
	CandidateCursor string
}

// Executor is the capability interface a data family implements to take part
// in orchestrated syncs. The core depends only on this interface and never on
// concrete domain types.
//
// Apply MUST be idempotent: after a crash the same window is reprocessed in
// full, and the overlap window deliberately re-delivers records near the
// cursor boundary.
type Executor interface {
	// Family returns the api_family this executor serves
	Family() string

	// LoadCursor extracts the resumption token from the sync state.
	// An empty return means "do a full backfill."
	LoadCursor(state *SyncState) string

	// FetchPage fetches one page for the account, starting from cursor.
	// pageToken is empty for the first page of a run. Transient errors
	// (timeouts, rate limits) should be retried with bounded backoff inside
	// the executor before surfacing.
	FetchPage(ctx context.Context, accountID, cursor, pageToken string) (*Page, error)

	// Apply upserts the fetched items into domain storage. Owned by the
	// family, never by the orchestration core.
	Apply(ctx context.Context, accountID string, items []json.RawMessage) error
}

// Registry holds the configured executors keyed by family name.
// It is populated at startup and read-only afterwards.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry creates an executor registry from the given executors.
// Duplicate families are rejected.
func NewRegistry(executors ...Executor) (*Registry, error) {
	r := &Registry{executors: make(map[string]Executor, len(executors))}
	for _, e := range executors {
		if _, ok := r.executors[e.Family()]; ok {
			return nil, fmt.Errorf("duplicate executor for family %q", e.Family())
		}
		r.executors[e.Family()] = e
	}
	return r, nil
}

// Get returns the executor for a family, if one is registered
func (r *Registry) Get(family string) (Executor, bool) {
	e, ok := r.executors[family]
	return e, ok
}

// Families returns the registered family names in sorted order
func (r *Registry) Families() []string {
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CredentialChecker reports whether an account is currently authenticated
// against the remote API. The scheduler consults it before acquiring a run
// lock; accounts failing the check are skipped for the tick without creating
// a run. Token refresh and validation live outside the orchestration core.
type CredentialChecker interface {
	IsAuthenticated(ctx context.Context, accountID string) bool
}

// StaticCredentials is a CredentialChecker backed by a fixed token table,
// typically resolved from configuration at startup.
type StaticCredentials struct {
	tokens map[string]string
}

// NewStaticCredentials builds a StaticCredentials from accountID -> token
func NewStaticCredentials(tokens map[string]string) *StaticCredentials {
	return &StaticCredentials{tokens: tokens}
}

// IsAuthenticated reports whether the account has a non-empty token
func (s *StaticCredentials) IsAuthenticated(_ context.Context, accountID string) bool {
	return s.tokens[accountID] != ""
}

// Token returns the account's token, or empty if unknown
func (s *StaticCredentials) Token(accountID string) string {
	return s.tokens[accountID]
}
