// Package event defines the repository events that can trigger workflows and
// their JSON wire form, which follows the repository host's webhook payloads.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the type of a repository event.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
)

// Repository describes the repository the event originated from.
type Repository struct {
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
}

// Event is a repository event that can be matched against workflow triggers.
type Event interface {
	// Kind returns the event type.
	Kind() Kind
	// Repo returns the originating repository.
	Repo() Repository
	// SHA returns the commit the event points at. This is the commit a run
	// checks out and reports status on.
	SHA() string
	// Branch returns the branch name the event concerns, or "" when the
	// event does not concern a branch (for example a tag push).
	Branch() string
	// Title returns the pull request title, or "" for non-PR events.
	Title() string
}

// Push is a push to a ref.
type Push struct {
	Ref        string     `json:"ref"`
	After      string     `json:"after"`
	Repository Repository `json:"repository"`
}

func (Push) Kind() Kind         { return KindPush }
func (p Push) Repo() Repository { return p.Repository }
func (p Push) SHA() string      { return p.After }
func (Push) Title() string      { return "" }

// Branch returns the branch name for branch pushes and "" otherwise.
func (p Push) Branch() string {
	if rest, ok := strings.CutPrefix(p.Ref, "refs/heads/"); ok {
		return rest
	}
	return ""
}

// Ref is one side of a pull request.
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequestDetail is the pull request itself within a pull_request event.
type PullRequestDetail struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Head   Ref    `json:"head"`
	Base   Ref    `json:"base"`
}

// PullRequest is a pull request lifecycle event (opened, synchronize, ...).
type PullRequest struct {
	Action      string            `json:"action"`
	PullRequest PullRequestDetail `json:"pull_request"`
	Repository  Repository        `json:"repository"`
}

func (PullRequest) Kind() Kind          { return KindPullRequest }
func (pr PullRequest) Repo() Repository { return pr.Repository }
func (pr PullRequest) SHA() string      { return pr.PullRequest.Head.SHA }
func (pr PullRequest) Branch() string   { return pr.PullRequest.Head.Ref }
func (pr PullRequest) Title() string    { return pr.PullRequest.Title }

// Parse decodes a raw webhook payload of the given kind.
func Parse(kind Kind, payload []byte) (Event, error) {
	switch kind {
	case KindPush:
		var p Push
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decoding push event: %w", err)
		}
		return p, nil
	case KindPullRequest:
		var pr PullRequest
		if err := json.Unmarshal(payload, &pr); err != nil {
			return nil, fmt.Errorf("decoding pull_request event: %w", err)
		}
		return pr, nil
	default:
		return nil, fmt.Errorf("unsupported event kind %q", kind)
	}
}
