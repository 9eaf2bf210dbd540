package score

import (
	"fmt"
	"time"
)

// Kind is the type of contribution event.
type Kind string

const (
	KindCommit       Kind = "commit"
	KindPROpen       Kind = "pr_open"
	KindPRMerge      Kind = "pr_merge"
	KindPRReview     Kind = "pr_review"
	KindPRComment    Kind = "pr_comment"
	KindIssueOpen    Kind = "issue_open"
	KindIssueClose   Kind = "issue_close"
	KindIssueComment Kind = "issue_comment"
	KindReaction     Kind = "reaction"
)

// Review states.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
	ReviewCommented        = "commented"
)

// Kinds lists all supported event kinds.
var Kinds = []Kind{
	KindCommit,
	KindPROpen,
	KindPRMerge,
	KindPRReview,
	KindPRComment,
	KindIssueOpen,
	KindIssueClose,
	KindIssueComment,
	KindReaction,
}

// ParseKind validates an event kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind: %q", s)
}

// Event is one ingested contribution. Events are immutable once stored.
type Event struct {
	ID         string    `json:"id" yaml:"id"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	Actor      string    `json:"actor" yaml:"actor"`
	Repository string    `json:"repository" yaml:"repository"`
	Number     int       `json:"number,omitempty" yaml:"number,omitempty"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`

	// magnitude
	Additions    int      `json:"additions,omitempty" yaml:"additions,omitempty"`
	Deletions    int      `json:"deletions,omitempty" yaml:"deletions,omitempty"`
	ChangedFiles int      `json:"changed_files,omitempty" yaml:"changedFiles,omitempty"`
	BodyLength   int      `json:"body_length,omitempty" yaml:"bodyLength,omitempty"`
	Labels       []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Paths        []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// pull request facts at ingestion time
	ReviewCount   int `json:"review_count,omitempty" yaml:"reviewCount,omitempty"`
	ApprovalCount int `json:"approval_count,omitempty" yaml:"approvalCount,omitempty"`
	CommentCount  int `json:"comment_count,omitempty" yaml:"commentCount,omitempty"`
	LinkedIssues  int `json:"linked_issues,omitempty" yaml:"linkedIssues,omitempty"`

	ReviewState string    `json:"review_state,omitempty" yaml:"reviewState,omitempty"`
	OpenedAt    time.Time `json:"opened_at,omitempty" yaml:"openedAt,omitempty"`
	Thread      string    `json:"thread,omitempty" yaml:"thread,omitempty"`
	Reaction    string    `json:"reaction,omitempty" yaml:"reaction,omitempty"`
	Received    bool      `json:"received,omitempty" yaml:"received,omitempty"`
}

// LinesChanged is additions plus deletions.
func (e *Event) LinesChanged() int {
	return e.Additions + e.Deletions
}

// ItemKey identifies the PR or issue the event belongs to.
func (e *Event) ItemKey() string {
	return fmt.Sprintf("%s#%d", e.Repository, e.Number)
}
