package mailtext

import (
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// ParseEML reads an RFC 5322 message into the provider message shape.
func ParseEML(r io.Reader) (gmail.Message, error) {
	entity, err := gomessage.Read(r)
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return gmail.Message{}, fmt.Errorf("read message: %w", err)
	}
	msg := gmail.Message{Headers: map[string]string{}}
	fields := entity.Header.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		if _, seen := msg.Headers[key]; seen {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers[key] = DecodeHeader(value)
	}
	mh := mail.Header{Header: entity.Header}
	if date, err := mh.Date(); err == nil {
		msg.Date = date
	}
	if id, err := mh.MessageID(); err == nil {
		msg.ID = gmail.MessageID(id)
	}
	readBody(&msg, entity)
	msg.Plain = PlainOrDerived(msg.Plain, msg.HTML)
	return msg, nil
}

func readBody(msg *gmail.Message, entity *gomessage.Entity) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			readBody(msg, part)
		}
	}
	ct, _, _ := entity.Header.ContentType()
	if disp, _, _ := entity.Header.ContentDisposition(); disp == "attachment" {
		return
	}
	switch {
	case strings.HasPrefix(ct, "text/html") && msg.HTML == "":
		if body, err := io.ReadAll(entity.Body); err == nil {
			msg.HTML = string(body)
		}
	case (ct == "" || strings.HasPrefix(ct, "text/plain")) && msg.Plain == "":
		if body, err := io.ReadAll(entity.Body); err == nil {
			msg.Plain = string(body)
		}
	}
}

// ReadThread parses each file as one message of a single thread, in argument order.
func ReadThread(paths ...string) (gmail.Thread, error) {
	th := gmail.Thread{}
	for _, p := range paths {
		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			return gmail.Thread{}, fmt.Errorf("open %s: %w", p, err)
		}
		msg, err := ParseEML(f)
		_ = f.Close()
		if err != nil {
			return gmail.Thread{}, fmt.Errorf("parse %s: %w", p, err)
		}
		if th.ID == "" {
			th.ID = gmail.ThreadID(filepath.Base(p))
		}
		msg.ThreadID = th.ID
		th.Messages = append(th.Messages, msg)
	}
	return th, nil
}
