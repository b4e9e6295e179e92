package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"writline/internal/attachments"
	"writline/internal/domain"
	"writline/internal/normalize"
)

// ProceedingWrite is the body of a proceeding create or update.
type ProceedingWrite struct {
	FIR      string
	Hearing  domain.HearingDetails
	Payload  normalize.Payload
	Decision *domain.DecisionDetails
	Draft    bool
	Files    attachments.Instructions
}

type formField struct {
	name  string
	value any
}

func (w ProceedingWrite) encode(update bool) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []formField{
		{"fir", w.FIR},
		{"type", w.Payload.Type},
		{"hearingDetails", w.Hearing},
		{w.Payload.Type.Channel(), w.Payload.Value()},
		{"draft", w.Draft},
	}
	if w.Decision != nil {
		fields = append(fields, formField{"decisionDetails", w.Decision})
	}
	if update && len(w.Files.Delete) > 0 {
		fields = append(fields, formField{"filesToDelete", w.Files.Delete})
	}
	for _, f := range fields {
		if f.name == "" {
			return nil, "", fmt.Errorf("proceeding type %q has no payload channel", w.Payload.Type)
		}
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := mw.WriteField(f.name, string(b)); err != nil {
			return nil, "", err
		}
	}
	for _, i := range w.Files.Indices() {
		if err := writeFile(mw, w.Files.PartName(i), w.Files.Files[i]); err != nil {
			return nil, "", err
		}
	}
	if w.Files.Decision != nil {
		if err := writeFile(mw, attachments.DecisionPart, *w.Files.Decision); err != nil {
			return nil, "", err
		}
	}
	if w.Files.Order != nil {
		if err := writeFile(mw, attachments.OrderPart, *w.Files.Order); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(mw *multipart.Writer, part string, f attachments.File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(part), quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", f.ContentType)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = pw.Write(f.Data)
	return err
}
