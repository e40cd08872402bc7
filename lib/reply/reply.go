// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package reply renders bot replies. Replies are written in markdown;
// the markdown source becomes the plain body and goldmark renders the
// HTML formatted_body that Matrix clients display.
package reply

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/messaging"
)

// FormatHTML is the Matrix format identifier for HTML bodies.
const FormatHTML = "org.matrix.custom.html"

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// Raw HTML in the source is omitted from the output, so user-supplied
// text cannot inject markup.
func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.Table,
				extension.Strikethrough,
			),
		)
	})
	return markdownInstance
}

// Notice renders markdown as an m.notice. If rendering fails the reply
// still goes out as plain text.
func Notice(markdown string) messaging.MessageContent {
	content := messaging.NewNoticeMessage(markdown)
	var buffer bytes.Buffer
	if err := getMarkdown().Convert([]byte(markdown), &buffer); err != nil {
		return content
	}
	content.Format = FormatHTML
	content.FormattedBody = strings.TrimSuffix(buffer.String(), "\n")
	return content
}

// To renders a Notice threaded as a reply to event and mentioning
// sender.
func To(event ref.EventID, sender ref.UserID, markdown string) messaging.MessageContent {
	return Notice(markdown).InReplyToEvent(event, sender)
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	"|", `\|`,
)

// Escape quotes text so markdown renders it literally. Faction names
// and user input pass through it before being interpolated.
func Escape(text string) string {
	return escaper.Replace(text)
}
