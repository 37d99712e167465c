// Package transform converts raw Jira issues into normalized records for
// language-model training corpora, including derived auxiliary tasks.
package transform

import (
	"fmt"

	"github.com/corpustools/jira-harvest/pkg/client"
)

// summaryLimit bounds the truncation-based summary heuristic. Measured in
// runes so multi-byte text is never split mid-character.
const summaryLimit = 300

// Task is one derived training task. Keys vary per task kind, so the unused
// fields are omitted rather than emitted as nulls.
type Task struct {
	Task     string  `json:"task"`
	Input    *string `json:"input,omitempty"`
	Output   *string `json:"output,omitempty"`
	Question *string `json:"question,omitempty"`
	Answer   *string `json:"answer,omitempty"`
}

// NormalizedIssue is the transformed record written to the corpus sink.
// Every optional upstream field that is absent is an explicit null or empty
// value, never a missing key: downstream consumers depend on key presence.
type NormalizedIssue struct {
	IssueKey    string   `json:"issue_key"`
	Title       *string  `json:"title"`
	Status      *string  `json:"status"`
	Project     *string  `json:"project"`
	Reporter    *string  `json:"reporter"`
	Assignee    *string  `json:"assignee"`
	Priority    *string  `json:"priority"`
	Created     *string  `json:"created"`
	Updated     *string  `json:"updated"`
	Labels      []string `json:"labels"`
	Description string   `json:"description"`
	Comments    []string `json:"comments"`
	Tasks       []Task   `json:"tasks"`
}

// Normalize transforms a raw Jira issue into a NormalizedIssue.
func Normalize(issue client.Issue) NormalizedIssue {
	fields := issue.Fields

	description := ""
	if fields.Description != nil {
		description = *fields.Description
	}

	comments := make([]string, 0)
	if fields.Comment != nil {
		for _, c := range fields.Comment.Comments {
			if c.Body != "" {
				comments = append(comments, c.Body)
			}
		}
	}

	labels := fields.Labels
	if labels == nil {
		labels = make([]string, 0)
	}

	issueType := namedOrNil(fields.IssueType)

	return NormalizedIssue{
		IssueKey:    issue.Key,
		Title:       fields.Summary,
		Status:      namedOrNil(fields.Status),
		Project:     projectOrNil(fields.Project),
		Reporter:    userOrNil(fields.Reporter),
		Assignee:    userOrNil(fields.Assignee),
		Priority:    namedOrNil(fields.Priority),
		Created:     fields.Created,
		Updated:     fields.Updated,
		Labels:      labels,
		Description: description,
		Comments:    comments,
		Tasks:       deriveTasks(issue.Key, description, comments, issueType),
	}
}

// deriveTasks builds the auxiliary training tasks for one issue.
func deriveTasks(key, description string, comments []string, issueType *string) []Task {
	// Truncation summary over the description plus the first comment.
	combined := description
	if len(comments) > 0 {
		combined += "\n" + comments[0]
	}
	summary := truncate(combined, summaryLimit)

	classOutput := "Unknown"
	if issueType != nil && *issueType != "" {
		classOutput = *issueType
	}

	question := fmt.Sprintf("What is the issue %s about?", key)

	return []Task{
		{
			Task:   "summarisation",
			Input:  ptr(description),
			Output: ptr(summary),
		},
		{
			Task:   "classification",
			Input:  ptr(description),
			Output: ptr(classOutput),
		},
		{
			Task:     "question_answering",
			Question: ptr(question),
			Answer:   ptr(summary),
		},
	}
}

// truncate cuts text to limit runes, appending an ellipsis marker when
// anything was dropped.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func namedOrNil(f *client.NamedField) *string {
	if f == nil {
		return nil
	}
	return &f.Name
}

func userOrNil(f *client.UserField) *string {
	if f == nil {
		return nil
	}
	return &f.DisplayName
}

func projectOrNil(f *client.ProjectField) *string {
	if f == nil {
		return nil
	}
	return &f.Key
}

func ptr(s string) *string {
	return &s
}
