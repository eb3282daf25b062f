package runtime

import (
	"encoding/base64"
	"net/textproto"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/mailtext"
)

// toMessage converts an API message fetched with format=full.
func toMessage(m *gmailv1.Message) gc.Message {
	out := gc.Message{
		ID:       gc.MessageID(m.Id),
		ThreadID: gc.ThreadID(m.ThreadId),
		LabelIDs: toLabelIDs(m.LabelIds),
		Headers:  map[string]string{},
	}
	if m.InternalDate > 0 {
		out.Date = time.UnixMilli(m.InternalDate)
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			key := textproto.CanonicalMIMEHeaderKey(h.Name)
			if _, seen := out.Headers[key]; seen {
				continue
			}
			out.Headers[key] = mailtext.DecodeHeader(h.Value)
		}
		walkPart(m.Payload, &out)
	}
	out.Plain = mailtext.PlainOrDerived(out.Plain, out.HTML)
	return out
}

// walkPart keeps the first text/plain and text/html bodies, depth first.
func walkPart(p *gmailv1.MessagePart, out *gc.Message) {
	if p == nil {
		return
	}
	if strings.HasPrefix(p.MimeType, "multipart/") {
		for _, child := range p.Parts {
			walkPart(child, out)
		}
		return
	}
	if p.Filename != "" || p.Body == nil || p.Body.Data == "" {
		return
	}
	switch {
	case strings.HasPrefix(p.MimeType, "text/plain") && out.Plain == "":
		out.Plain = decodeBody(p.Body.Data)
	case strings.HasPrefix(p.MimeType, "text/html") && out.HTML == "":
		out.HTML = decodeBody(p.Body.Data)
	}
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return string(b)
}

func toLabelIDs(in []string) []gc.LabelID {
	out := make([]gc.LabelID, 0, len(in))
	for _, s := range in {
		out = append(out, gc.LabelID(s))
	}
	return out
}

func toStrings(in []gc.LabelID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, id := range in {
		out = append(out, string(id))
	}
	return out
}
