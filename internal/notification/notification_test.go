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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisturi/tracksync/config"
)

const webhook = "https://hooks.slack.test/services/T000/B000/XXX"

func newTestNotifier(t *testing.T) *Notifier {
	n := New(config.Notification{Slack: config.SlackWebhook{WebhookUrl: webhook}})
	require.NotNil(t, n)
	n.client.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	n.Now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }
	httpmock.ActivateNonDefault(n.client.HTTPClient)
	return n
}

func captureMessage(t *testing.T, captured *message) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(req.Body).Decode(captured))
		return httpmock.NewStringResponse(200, "ok"), nil
	}
}

func flatten(msg message) string {
	var b strings.Builder
	for _, blk := range msg.Blocks {
		if blk.Text != nil {
			b.WriteString(blk.Text.Text + "\n")
		}
		for _, f := range blk.Fields {
			b.WriteString(f.Text + "\n")
		}
	}
	return b.String()
}

func TestNew_DisabledWithoutWebhook(t *testing.T) {
	assert.Nil(t, New(config.Notification{}))
	// nil notifiers are ignored
	Send(context.Background(), nil, RunSummary{})
	SendError(context.Background(), nil, errors.New("boom"))
}

func TestNotifyRun(t *testing.T) {
	n := newTestNotifier(t)
	defer httpmock.DeactivateAndReset()

	var captured message
	httpmock.RegisterResponder(http.MethodPost, webhook, captureMessage(t, &captured))

	err := n.NotifyRun(context.Background(), RunSummary{
		FileName: "pedidos.csv", Total: 3, Success: 1, Skipped: 1, Errors: 1, Duration: 1234567 * time.Microsecond,
	})
	require.NoError(t, err)

	require.NotEmpty(t, captured.Blocks)
	assert.Equal(t, "header", captured.Blocks[0].Type)
	assert.Contains(t, captured.Blocks[0].Text.Text, "with errors")

	body := flatten(captured)
	assert.Contains(t, body, "pedidos.csv")
	assert.Contains(t, body, "*Total:*\n3")
	assert.Contains(t, body, "*Errors:*\n1")
	assert.Contains(t, body, "1.235s")
	assert.Contains(t, body, "10 May 24 09:00 UTC")
}

func TestNotifyRun_DryRunTitle(t *testing.T) {
	n := newTestNotifier(t)
	defer httpmock.DeactivateAndReset()

	var captured message
	httpmock.RegisterResponder(http.MethodPost, webhook, captureMessage(t, &captured))

	require.NoError(t, n.NotifyRun(context.Background(), RunSummary{Total: 1, Success: 1, DryRun: true}))
	assert.True(t, strings.HasSuffix(captured.Blocks[0].Text.Text, "(dry run)"))
	assert.NotContains(t, captured.Blocks[0].Text.Text, "errors")
}

func TestNotifyError_KeepsQuotes(t *testing.T) {
	n := newTestNotifier(t)
	defer httpmock.DeactivateAndReset()

	var captured message
	httpmock.RegisterResponder(http.MethodPost, webhook, captureMessage(t, &captured))

	require.NoError(t, n.NotifyError(context.Background(), errors.New(`open "orders.csv": no such file`)))
	assert.Contains(t, flatten(captured), `open "orders.csv": no such file`)
}

func TestNotifyRun_RetriesServerErrors(t *testing.T) {
	n := newTestNotifier(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, webhook, httpmock.NewStringResponder(500, "internal_error"))

	err := n.NotifyRun(context.Background(), RunSummary{})
	assert.Error(t, err)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())

	// Send only logs the failure
	Send(context.Background(), n, RunSummary{})
	assert.Equal(t, 6, httpmock.GetTotalCallCount())
}
