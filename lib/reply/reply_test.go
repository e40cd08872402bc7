// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package reply

import (
	"strings"
	"testing"

	"github.com/factionkeep/factionkeep/lib/ref"
)

func TestNotice(t *testing.T) {
	content := Notice("Created faction **Red Team**.")
	if content.MsgType != "m.notice" {
		t.Errorf("MsgType = %q, want m.notice", content.MsgType)
	}
	if content.Body != "Created faction **Red Team**." {
		t.Errorf("Body = %q, want the markdown source", content.Body)
	}
	if content.Format != FormatHTML {
		t.Errorf("Format = %q", content.Format)
	}
	if content.FormattedBody != "<p>Created faction <strong>Red Team</strong>.</p>" {
		t.Errorf("FormattedBody = %q", content.FormattedBody)
	}
}

func TestNoticeTable(t *testing.T) {
	content := Notice("| # | Faction | Points |\n|---|---|---|\n| 1 | Red Team | 10 |\n")
	if !strings.Contains(content.FormattedBody, "<table>") || !strings.Contains(content.FormattedBody, "<td>Red Team</td>") {
		t.Errorf("FormattedBody = %q, want an HTML table", content.FormattedBody)
	}
}

func TestNoticeOmitsRawHTML(t *testing.T) {
	content := Notice("hello <script>alert(1)</script>")
	if strings.Contains(content.FormattedBody, "<script>") {
		t.Errorf("FormattedBody = %q, raw HTML passed through", content.FormattedBody)
	}
}

func TestEscape(t *testing.T) {
	content := Notice("Faction **" + Escape("*Star*_Team_ <b>") + "**")
	if strings.Contains(content.FormattedBody, "<em>") || strings.Contains(content.FormattedBody, "<b>") {
		t.Errorf("FormattedBody = %q, escaped text was interpreted", content.FormattedBody)
	}
	if !strings.Contains(content.FormattedBody, "*Star*_Team_ &lt;b&gt;") {
		t.Errorf("FormattedBody = %q, want the literal name", content.FormattedBody)
	}
}

func TestTo(t *testing.T) {
	event := ref.MustParseEventID("$command")
	sender := ref.MustParseUserID("@ana:example.org")
	content := To(event, sender, "done")
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil || content.RelatesTo.InReplyTo.EventID != event {
		t.Errorf("RelatesTo = %+v", content.RelatesTo)
	}
	if content.Mentions == nil || len(content.Mentions.UserIDs) != 1 || content.Mentions.UserIDs[0] != sender {
		t.Errorf("Mentions = %+v", content.Mentions)
	}
}
