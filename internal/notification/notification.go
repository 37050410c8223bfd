/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bisturi/tracksync/config"
	"github.com/bisturi/tracksync/internal/request"
)

// RunSummary is what a completion message reports.
type RunSummary struct {
	FileName string
	Total    int
	Success  int
	Skipped  int
	Errors   int
	Duration time.Duration
	DryRun   bool
}

type text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

type message struct {
	Blocks []block `json:"blocks"`
}

// Notifier posts messages to a Slack incoming webhook.
type Notifier struct {
	client *request.Client
	Now    func() time.Time
}

// New returns nil when no webhook is configured.
func New(cnf config.Notification) *Notifier {
	if cnf.Slack.WebhookUrl == "" {
		return nil
	}
	return &Notifier{
		client: request.NewClient("slack", cnf.Slack.WebhookUrl, 10*time.Second, 2, request.RetryServerErrors),
		Now:    time.Now,
	}
}

func header(title string) block {
	return block{Type: "header", Text: &text{Type: "plain_text", Text: title, Emoji: true}}
}

func field(label string, value interface{}) block {
	return block{Type: "section", Fields: []text{{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%v", label, value)}}}
}

func (n *Notifier) send(ctx context.Context, msg message) error {
	return n.client.Do(ctx, http.MethodPost, "", msg, nil)
}

// NotifyRun sends the summary of a finished run.
func (n *Notifier) NotifyRun(ctx context.Context, s RunSummary) error {
	title := "Tracking sync finished ✅"
	if s.Errors > 0 {
		title = "Tracking sync finished with errors ⚠️"
	}
	if s.DryRun {
		title += " (dry run)"
	}
	msg := message{Blocks: []block{
		header(title),
		field("File", s.FileName),
		{Type: "section", Fields: []text{
			{Type: "mrkdwn", Text: fmt.Sprintf("*Total:*\n%d", s.Total)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Success:*\n%d", s.Success)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Skipped:*\n%d", s.Skipped)},
			{Type: "mrkdwn", Text: fmt.Sprintf("*Errors:*\n%d", s.Errors)},
		}},
		field("Duration", s.Duration.Round(time.Millisecond)),
		field("Time", n.Now().Format(time.RFC822)),
	}}
	return n.send(ctx, msg)
}

// NotifyError reports a run that could not start or finish.
func (n *Notifier) NotifyError(ctx context.Context, systemError error) error {
	msg := message{Blocks: []block{
		header("Error From tracksync 🐞"),
		field("Error", systemError.Error()),
		field("Time", n.Now().Format(time.RFC822)),
	}}
	return n.send(ctx, msg)
}

// Send delivers a run summary when a notifier is configured. Failures are logged only.
func Send(ctx context.Context, n *Notifier, s RunSummary) {
	if n == nil {
		return
	}
	if err := n.NotifyRun(ctx, s); err != nil {
		logrus.WithError(err).Warn("Failed to send Slack notification")
	}
}

// SendError is Send for a run that aborted.
func SendError(ctx context.Context, n *Notifier, systemError error) {
	if n == nil || systemError == nil {
		return
	}
	if err := n.NotifyError(ctx, systemError); err != nil {
		logrus.WithError(err).Warn("Failed to send Slack notification")
	}
}
