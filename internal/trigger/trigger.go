// Package trigger evaluates repository events against workflow triggers.
package trigger

import (
	"strings"

	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/workflow"
)

// Matches reports whether the event activates the given trigger.
//
// Push events match when the pushed branch is in the trigger's branch list;
// tag pushes never match. Pull request events match any action unless the PR
// title begins with one of the configured ignore prefixes. A nil trigger
// never matches.
func Matches(t *workflow.Trigger, ev event.Event) bool {
	if t == nil {
		return false
	}

	switch ev.Kind() {
	case event.KindPush:
		return matchesPush(t.Push, ev)
	case event.KindPullRequest:
		return matchesPullRequest(t.PullRequest, ev)
	}
	return false
}

func matchesPush(t *workflow.PushTrigger, ev event.Event) bool {
	if t == nil {
		return false
	}
	branch := ev.Branch()
	if branch == "" {
		return false
	}
	for _, b := range t.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

func matchesPullRequest(t *workflow.PullRequestTrigger, ev event.Event) bool {
	if t == nil {
		return false
	}
	for _, prefix := range t.IgnoreTitlePrefixes {
		if prefix != "" && strings.HasPrefix(ev.Title(), prefix) {
			return false
		}
	}
	return true
}

// Match returns the workflows in the set whose triggers the event activates.
func Match(set *workflow.Set, ev event.Event) []*workflow.Workflow {
	var matched []*workflow.Workflow
	for _, wf := range set.Workflows {
		if Matches(wf.On, ev) {
			matched = append(matched, wf)
		}
	}
	return matched
}
