// Package githubstatus publishes run states as GitHub commit statuses.
package githubstatus

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/event"
)

// statusContext is the name the statuses appear under on the commit.
const statusContext = "covflow/coverage"

// Reporter posts commit statuses through the GitHub API.
type Reporter struct {
	client *github.Client
}

// NewReporter builds a Reporter authenticated with a personal access token.
func NewReporter(token string) *Reporter {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Reporter{client: github.NewClient(tc)}
}

// NewReporterWithClient wires an existing client, used by tests.
func NewReporterWithClient(client *github.Client) *Reporter {
	return &Reporter{client: client}
}

// Report creates a commit status on the given SHA. state must be one of
// the API's accepted values (pending, success, failure, error).
func (r *Reporter) Report(ctx context.Context, repo event.Repository, sha, state, description string) error {
	owner, name, err := splitFullName(repo.FullName)
	if err != nil {
		return err
	}

	status := &github.RepoStatus{
		State:       github.String(state),
		Description: github.String(description),
		Context:     github.String(statusContext),
	}
	if _, _, err := r.client.Repositories.CreateStatus(ctx, owner, name, sha, status); err != nil {
		return fmt.Errorf("creating commit status on %s@%s: %w", repo.FullName, sha, err)
	}

	ctxlog.FromContext(ctx).Debug("Commit status published.", "repo", repo.FullName, "sha", sha, "state", state)
	return nil
}

func splitFullName(fullName string) (owner, name string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed repository name %q, want owner/name", fullName)
	}
	return parts[0], parts[1], nil
}
