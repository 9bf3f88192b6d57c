// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Content is one message body. Body is the plain-text form every
// client can show; HTML, when set, is the rich rendering.
type Content struct {
	Body string
	HTML string
}

// Text returns plain content with no rich rendering.
func Text(body string) Content {
	return Content{Body: body}
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// Markdown renders source into Content: the source itself is the
// plain body, goldmark's output the HTML. Raw HTML in source is
// dropped. If rendering fails the content degrades to plain text.
func Markdown(source string) Content {
	var buffer bytes.Buffer
	if err := markdownRenderer().Convert([]byte(source), &buffer); err != nil {
		return Text(source)
	}
	return Content{
		Body: source,
		HTML: strings.TrimSpace(buffer.String()),
	}
}
