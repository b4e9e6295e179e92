// Package attachments tracks the file changes of one proceeding edit: files
// picked for upload per entry index, previously persisted files to delete, and
// the single-slot decision and order-of-proceeding files.
package attachments

import (
	"fmt"
	"sort"
	"strings"

	"writline/internal/apperr"
)

const (
	DecisionPart = "attachments_decisionDetails"
	OrderPart    = "orderOfProceeding"
)

// Allowed content types for uploads.
var allowedTypes = map[string]string{
	"application/pdf": "PDF",
	"image/png":       "PNG",
	"image/jpeg":      "JPEG",
	"image/jpg":       "JPG",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "XLSX",
	"application/vnd.ms-excel": "XLS",
}

// Allowed reports whether contentType may be uploaded. Parameters such as
// charset are ignored.
func Allowed(contentType string) bool {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	_, ok := allowedTypes[mt]
	return ok
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Ledger struct {
	pending  map[int]File
	decision *File
	order    *File
	deletes  []string
	marked   map[string]bool
}

func New() *Ledger {
	return &Ledger{pending: map[int]File{}, marked: map[string]bool{}}
}

func checkFile(f File) error {
	if !Allowed(f.ContentType) {
		return apperr.Validationf("attachment", "file %q has unsupported type %q (allowed: PDF, PNG, JPEG, JPG, XLSX, XLS)", f.Name, f.ContentType)
	}
	return nil
}

// Attach records f as the pending upload of entry index, replacing any earlier
// pick. A disallowed type is rejected and the ledger is left unchanged.
func (l *Ledger) Attach(index int, f File) error {
	if index < 0 {
		return apperr.Validationf("attachment", "invalid entry index %d", index)
	}
	if err := checkFile(f); err != nil {
		return err
	}
	l.pending[index] = f
	return nil
}

func (l *Ledger) Detach(index int) {
	delete(l.pending, index)
}

func (l *Ledger) AttachDecision(f File) error {
	if err := checkFile(f); err != nil {
		return err
	}
	l.decision = &f
	return nil
}

func (l *Ledger) DetachDecision() { l.decision = nil }

func (l *Ledger) AttachOrder(f File) error {
	if err := checkFile(f); err != nil {
		return err
	}
	l.order = &f
	return nil
}

func (l *Ledger) DetachOrder() { l.order = nil }

// MarkExistingForDeletion queues a persisted filename for deletion on save.
func (l *Ledger) MarkExistingForDeletion(name string) {
	if name == "" || l.marked[name] {
		return
	}
	l.marked[name] = true
	l.deletes = append(l.deletes, name)
}

// ReindexOnRemove follows the removal of entry removed from the sequence: its
// pending file is dropped and files of later entries move down one index.
func (l *Ledger) ReindexOnRemove(removed int) {
	next := make(map[int]File, len(l.pending))
	for i, f := range l.pending {
		switch {
		case i < removed:
			next[i] = f
		case i > removed:
			next[i-1] = f
		}
	}
	l.pending = next
}

// ResetForTypeChange queues every given persisted filename for deletion and
// drops all pending uploads, which belonged to entries of the old type.
func (l *Ledger) ResetForTypeChange(persisted ...string) {
	for _, name := range persisted {
		l.MarkExistingForDeletion(name)
	}
	l.pending = map[int]File{}
	l.decision = nil
	l.order = nil
}

// Pending returns a copy of the per-entry uploads.
func (l *Ledger) Pending() map[int]File {
	out := make(map[int]File, len(l.pending))
	for i, f := range l.pending {
		out[i] = f
	}
	return out
}

func (l *Ledger) Deletions() []string {
	return append([]string(nil), l.deletes...)
}

// Clear forgets everything, after a successful save.
func (l *Ledger) Clear() {
	l.pending = map[int]File{}
	l.decision = nil
	l.order = nil
	l.deletes = nil
	l.marked = map[string]bool{}
}

type Instructions struct {
	Channel  string
	Files    map[int]File
	Decision *File
	Order    *File
	Delete   []string
}

// PartName is the multipart field name of the upload for entry index.
func (in Instructions) PartName(index int) string {
	return fmt.Sprintf("attachments_%s_%d", in.Channel, index)
}

// Indices returns the entry indices with uploads, ascending.
func (in Instructions) Indices() []int {
	out := make([]int, 0, len(in.Files))
	for i := range in.Files {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (in Instructions) Empty() bool {
	return len(in.Files) == 0 && in.Decision == nil && in.Order == nil && len(in.Delete) == 0
}

// BuildSaveInstructions returns the uploads and deletions to send with a save
// on the given variant channel.
func (l *Ledger) BuildSaveInstructions(channel string) Instructions {
	in := Instructions{Channel: channel, Files: l.Pending(), Delete: l.Deletions()}
	if l.decision != nil {
		d := *l.decision
		in.Decision = &d
	}
	if l.order != nil {
		o := *l.order
		in.Order = &o
	}
	return in
}
