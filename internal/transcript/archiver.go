// Package transcript renders a durable copy of a ticket channel's message
// history at close time.
package transcript

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	apperrors "github.com/spec-kit/ticket-bot/pkg/util"

	"github.com/spec-kit/ticket-bot/internal/gateway"
)

// Artifact is the rendered transcript blob.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Archiver produces a transcript artifact for a channel.
type Archiver interface {
	Render(ctx context.Context, channel gateway.ChannelInfo) (*Artifact, error)
}

// HTMLArchiver renders channel history into a standalone HTML page.
type HTMLArchiver struct {
	gw    gateway.Gateway
	limit int
}

// NewHTMLArchiver builds an archiver reading at most limit messages.
func NewHTMLArchiver(gw gateway.Gateway, limit int) *HTMLArchiver {
	if limit <= 0 {
		limit = 1000
	}
	return &HTMLArchiver{gw: gw, limit: limit}
}

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transcript: {{.Channel}}</title>
<style>
body { font-family: sans-serif; background: #313338; color: #dbdee1; margin: 2em; }
h1 { font-size: 1.2em; }
.meta { color: #949ba4; font-size: 0.85em; }
.msg { margin: 0.75em 0; }
.author { font-weight: bold; color: #f2f3f5; }
.bot { color: #5865f2; }
.time { color: #949ba4; font-size: 0.8em; margin-left: 0.5em; }
.content { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>#{{.Channel}}</h1>
<p class="meta">{{.Count}} messages, exported {{.Exported}}</p>
{{range .Messages}}<div class="msg">
<span class="author{{if .Bot}} bot{{end}}">{{.AuthorName}}</span><span class="time">{{.When}}</span>
<div class="content">{{.Content}}</div>
</div>
{{end}}</body>
</html>
`))

type pageMessage struct {
	AuthorName string
	Bot        bool
	When       string
	Content    string
}

type pageData struct {
	Channel  string
	Count    int
	Exported string
	Messages []pageMessage
}

// Render reads the channel's full history and produces the HTML artifact.
// Any history or rendering failure is reported as ArchiverUnavailable.
func (a *HTMLArchiver) Render(ctx context.Context, channel gateway.ChannelInfo) (*Artifact, error) {
	history, err := a.gw.ChannelHistory(ctx, channel.ID, a.limit)
	if err != nil {
		return nil, apperrors.NewArchiverUnavailable(fmt.Errorf("fetch history: %w", err))
	}

	data := pageData{
		Channel:  channel.Name,
		Count:    len(history),
		Exported: time.Now().UTC().Format(time.RFC3339),
	}
	for _, m := range history {
		data.Messages = append(data.Messages, pageMessage{
			AuthorName: m.AuthorName,
			Bot:        m.Bot,
			When:       m.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			Content:    m.Content,
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, apperrors.NewArchiverUnavailable(fmt.Errorf("render: %w", err))
	}

	return &Artifact{
		FileName:    fmt.Sprintf("transcript-%s.html", channel.Name),
		ContentType: "text/html",
		Data:        buf.Bytes(),
	}, nil
}
