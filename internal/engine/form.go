package engine

import (
	"sort"

	"writline/internal/apperr"
	"writline/internal/attachments"
	"writline/internal/domain"
	"writline/internal/normalize"
	"writline/internal/records"
)

// proceedingForm is the working copy of one proceeding shared by the filing
// Step 2 and the proceeding edit.
type proceedingForm struct {
	entries  normalize.Editable
	hearing  domain.HearingDetails
	decision *domain.DecisionDetails
	// order is the persisted legacy order-of-proceeding filename.
	order  string
	ledger *attachments.Ledger
}

func newForm(t domain.ProceedingType, hearingDate string) proceedingForm {
	return proceedingForm{
		entries: normalize.Empty(t),
		hearing: domain.HearingDetails{DateOfHearing: hearingDate},
		ledger:  attachments.New(),
	}
}

func loadForm(p domain.Proceeding) (proceedingForm, error) {
	e, err := normalize.Load(p)
	if err != nil {
		return proceedingForm{}, err
	}
	f := proceedingForm{entries: e, hearing: p.Hearing, order: p.OrderOfProceeding, ledger: attachments.New()}
	if p.Decision != nil {
		d := *p.Decision
		f.decision = &d
	}
	return f, nil
}

// switchType queues every persisted file of the current type for deletion
// and resets the entries to one empty entry of t.
func (f *proceedingForm) switchType(t domain.ProceedingType) {
	persisted := f.entries.Attachments()
	if f.decision != nil {
		persisted = append(persisted, f.decision.Attachment)
		f.decision.Attachment = ""
	}
	persisted = append(persisted, f.order)
	f.order = ""
	f.ledger.ResetForTypeChange(persisted...)
	f.entries = normalize.Empty(t)
}

func (f *proceedingForm) addEntry() { f.entries.Add() }

func (f *proceedingForm) removeEntry(i int) error {
	name := f.entries.AttachmentAt(i)
	if err := f.entries.Remove(i); err != nil {
		return apperr.Validation(f.entries.Type.Channel(), err.Error())
	}
	f.ledger.MarkExistingForDeletion(name)
	f.ledger.ReindexOnRemove(i)
	return nil
}

// editEntries applies fn to a copy of the entries. fn may change field values
// but not the type, the entry count or the persisted attachment names; those
// go through the dedicated operations so the ledger stays aligned.
func (f *proceedingForm) editEntries(fn func(e *normalize.Editable)) error {
	next := f.entries.Clone()
	fn(&next)
	if next.Type != f.entries.Type {
		return apperr.Validation("type", "use the type operation to change the proceeding type")
	}
	if next.Len() != f.entries.Len() {
		return apperr.Validation(f.entries.Type.Channel(), "use add and remove to change the number of entries")
	}
	for i := 0; i < next.Len(); i++ {
		_ = next.SetAttachment(i, f.entries.AttachmentAt(i))
	}
	f.entries = next
	return nil
}

func (f *proceedingForm) checkIndex(i int) error {
	if i < 0 || i >= f.entries.Len() {
		return apperr.Validationf("attachment", "entry index %d out of range", i)
	}
	return nil
}

func (f *proceedingForm) attach(i int, file attachments.File) error {
	if err := f.checkIndex(i); err != nil {
		return err
	}
	return f.ledger.Attach(i, file)
}

func (f *proceedingForm) detach(i int) error {
	if err := f.checkIndex(i); err != nil {
		return err
	}
	f.ledger.Detach(i)
	return nil
}

func (f *proceedingForm) removeExisting(i int) error {
	if err := f.checkIndex(i); err != nil {
		return err
	}
	f.ledger.MarkExistingForDeletion(f.entries.AttachmentAt(i))
	return f.entries.SetAttachment(i, "")
}

func (f *proceedingForm) removeDecisionAttachment() {
	if f.decision != nil {
		f.ledger.MarkExistingForDeletion(f.decision.Attachment)
		f.decision.Attachment = ""
	}
	f.ledger.DetachDecision()
}

func (f *proceedingForm) removeOrder() {
	f.ledger.MarkExistingForDeletion(f.order)
	f.order = ""
	f.ledger.DetachOrder()
}

// setDecision replaces the decision block. The persisted attachment carries
// over unless d names one; clearing the block queues it for deletion.
func (f *proceedingForm) setDecision(d *domain.DecisionDetails) {
	if d == nil {
		f.removeDecisionAttachment()
		f.decision = nil
		return
	}
	next := *d
	if next.Attachment == "" && f.decision != nil {
		next.Attachment = f.decision.Attachment
	}
	f.decision = &next
}

func (f *proceedingForm) validateFinal(w domain.WritType) error {
	if err := validateType(f.entries.Type, w); err != nil {
		return err
	}
	if err := validateHearing(f.hearing); err != nil {
		return err
	}
	return normalize.ValidateFinal(f.entries)
}

func (f *proceedingForm) write(firID string, draft bool) records.ProceedingWrite {
	w := records.ProceedingWrite{
		FIR:     firID,
		Hearing: f.hearing,
		Payload: normalize.Save(f.entries),
		Draft:   draft,
		Files:   f.ledger.BuildSaveInstructions(f.entries.Type.Channel()),
	}
	if f.decision != nil {
		d := *f.decision
		w.Decision = &d
	}
	return w
}

// saved replaces the form with what the server stored and forgets the
// recorded file changes.
func (f *proceedingForm) saved(p domain.Proceeding) error {
	next, err := loadForm(p)
	if err != nil {
		return err
	}
	*f = next
	return nil
}

// FormView is a read-only copy of a proceeding form.
type FormView struct {
	Type      domain.ProceedingType   `json:"type"`
	Hearing   domain.HearingDetails   `json:"hearingDetails"`
	Entries   normalize.Editable      `json:"entries"`
	Decision  *domain.DecisionDetails `json:"decisionDetails,omitempty"`
	Order     string                  `json:"orderOfProceeding,omitempty"`
	Pending   []int                   `json:"pendingUploads,omitempty"`
	Deletions []string                `json:"filesToDelete,omitempty"`
}

func (f *proceedingForm) view() FormView {
	v := FormView{
		Type:      f.entries.Type,
		Hearing:   f.hearing,
		Entries:   f.entries.Clone(),
		Order:     f.order,
		Deletions: f.ledger.Deletions(),
	}
	if f.decision != nil {
		d := *f.decision
		v.Decision = &d
	}
	for i := range f.ledger.Pending() {
		v.Pending = append(v.Pending, i)
	}
	sort.Ints(v.Pending)
	return v
}
