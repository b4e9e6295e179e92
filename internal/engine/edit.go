package engine

import (
	"context"
	"fmt"

	"writline/internal/apperr"
	"writline/internal/attachments"
	"writline/internal/domain"
	"writline/internal/events"
	"writline/internal/normalize"
)

// TypeChangeWarning is shown at confirmation after the proceeding type changed.
const TypeChangeWarning = "changing the proceeding type permanently deletes the attachments of the previous type, its decision attachment and its order of proceeding"

// ProceedingEdit is one session editing an already filed proceeding.
type ProceedingEdit struct {
	session
	eng Engine

	firID    string
	procID   string
	writType domain.WritType
	draft    bool
	form     proceedingForm
	// typeChanged survives a failed save so the warning is shown again.
	typeChanged bool
}

// EditProceeding loads proceeding id of case firID for editing. The case must
// already have a filed (non-draft) proceeding.
func (e Engine) EditProceeding(ctx context.Context, firID, id string) (*ProceedingEdit, error) {
	pe := &ProceedingEdit{session: newSession(StateLoading), eng: e, firID: firID, procID: id}
	pe.mu.Lock()
	defer pe.mu.Unlock()
	var (
		fir domain.FIR
		ps  []domain.Proceeding
	)
	err := pe.dispatch(ctx, func(ctx context.Context) error {
		var err error
		if fir, err = e.Repo.FIR(ctx, firID); err != nil {
			return err
		}
		ps, err = e.Repo.ProceedingsByFIR(ctx, firID)
		return err
	})
	if err != nil {
		return nil, err
	}
	var target *domain.Proceeding
	filed := false
	for i := range ps {
		if !ps[i].Draft {
			filed = true
		}
		if ps[i].ID == id {
			target = &ps[i]
		}
	}
	if !filed {
		return nil, apperr.State(fmt.Sprintf("case %s is still in progress; finish filing before editing proceedings", firID))
	}
	if target == nil {
		return nil, apperr.State(fmt.Sprintf("proceeding %s not found for case %s", id, firID))
	}
	form, err := loadForm(*target)
	if err != nil {
		return nil, err
	}
	pe.writType = fir.WritType
	pe.draft = target.Draft
	pe.form = form
	pe.state = StateReady
	return pe, nil
}

func (p *ProceedingEdit) event(typ string) events.Event {
	return events.Event{Type: typ, SessionID: p.id, FIRID: p.firID, EntityKind: "proceeding", EntityID: p.procID}
}

func (p *ProceedingEdit) editing(op string, fn func(form *proceedingForm) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable(op, StateReady, StateTypeChanged); err != nil {
		return err
	}
	return fn(&p.form)
}

// ChangeType switches the variant type. Every persisted file of the previous
// type is queued for deletion and the entries reset to one empty entry; the
// deletion happens on Confirm.
func (p *ProceedingEdit) ChangeType(t domain.ProceedingType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable("change type", StateReady, StateTypeChanged); err != nil {
		return err
	}
	if err := validateType(t, p.writType); err != nil {
		return err
	}
	if t == p.form.entries.Type {
		return nil
	}
	p.form.switchType(t)
	p.typeChanged = true
	p.state = StateTypeChanged
	return nil
}

func (p *ProceedingEdit) SetHearing(h domain.HearingDetails) error {
	return p.editing("set hearing", func(form *proceedingForm) error {
		form.hearing = h
		return nil
	})
}

func (p *ProceedingEdit) SetDecision(d *domain.DecisionDetails) error {
	return p.editing("set decision", func(form *proceedingForm) error {
		form.setDecision(d)
		return nil
	})
}

func (p *ProceedingEdit) EditEntries(fn func(e *normalize.Editable)) error {
	return p.editing("edit entries", func(form *proceedingForm) error { return form.editEntries(fn) })
}

func (p *ProceedingEdit) AddEntry() error {
	return p.editing("add entry", func(form *proceedingForm) error {
		form.addEntry()
		return nil
	})
}

func (p *ProceedingEdit) RemoveEntry(i int) error {
	return p.editing("remove entry", func(form *proceedingForm) error { return form.removeEntry(i) })
}

func (p *ProceedingEdit) Attach(i int, file attachments.File) error {
	return p.editing("attach", func(form *proceedingForm) error { return form.attach(i, file) })
}

func (p *ProceedingEdit) Detach(i int) error {
	return p.editing("detach", func(form *proceedingForm) error { return form.detach(i) })
}

func (p *ProceedingEdit) AttachDecision(file attachments.File) error {
	return p.editing("attach decision", func(form *proceedingForm) error { return form.ledger.AttachDecision(file) })
}

func (p *ProceedingEdit) AttachOrder(file attachments.File) error {
	return p.editing("attach order", func(form *proceedingForm) error { return form.ledger.AttachOrder(file) })
}

func (p *ProceedingEdit) RemoveExistingAttachment(i int) error {
	return p.editing("remove attachment", func(form *proceedingForm) error { return form.removeExisting(i) })
}

func (p *ProceedingEdit) RemoveDecisionAttachment() error {
	return p.editing("remove decision attachment", func(form *proceedingForm) error {
		form.removeDecisionAttachment()
		return nil
	})
}

func (p *ProceedingEdit) RemoveOrder() error {
	return p.editing("remove order", func(form *proceedingForm) error {
		form.removeOrder()
		return nil
	})
}

// RequestSave validates the form and moves to CONFIRM. Filed proceedings are
// validated as final; drafts are not.
func (p *ProceedingEdit) RequestSave() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable("request save", StateReady, StateTypeChanged); err != nil {
		return err
	}
	if p.draft {
		if err := validateType(p.form.entries.Type, p.writType); err != nil {
			return err
		}
	} else if err := p.form.validateFinal(p.writType); err != nil {
		return err
	}
	p.state = StateConfirm
	return nil
}

// Warning returns the irreversibility warning to show at CONFIRM, or "".
func (p *ProceedingEdit) Warning() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typeChanged {
		return TypeChangeWarning
	}
	return ""
}

func (p *ProceedingEdit) BackToEdit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable("back to edit", StateConfirm); err != nil {
		return err
	}
	p.state = p.editState()
	return nil
}

func (p *ProceedingEdit) editState() State {
	if p.typeChanged {
		return StateTypeChanged
	}
	return StateReady
}

// Confirm sends the edit with its file changes. On failure the session goes
// back to editing (READY, or TYPE_CHANGED after a type change) with every
// edit kept.
func (p *ProceedingEdit) Confirm(ctx context.Context) (domain.Proceeding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.usable("confirm", StateConfirm); err != nil {
		return domain.Proceeding{}, err
	}
	p.state = StateSaving
	w := p.form.write(p.firID, p.draft)
	id := p.procID
	var saved domain.Proceeding
	err := p.dispatch(ctx, func(ctx context.Context) error {
		var err error
		saved, err = p.eng.Repo.UpdateProceeding(ctx, id, w)
		return err
	})
	ev := p.event("proceeding.edited")
	ev.Payload = events.EventPayload{"type": string(w.Payload.Type), "typeChanged": p.typeChanged, "deleted": w.Files.Delete}
	p.eng.record(ctx, ev, err)
	if err != nil {
		if !p.closed {
			p.state = p.editState()
		}
		return domain.Proceeding{}, err
	}
	if err := p.form.saved(saved); err != nil {
		return saved, err
	}
	p.state = StateDone
	p.closed = true
	return saved, nil
}

// Cancel abandons the edit. Nothing is deleted on the server.
func (p *ProceedingEdit) Cancel() {
	if p.cancel() {
		p.eng.record(context.Background(), p.event("edit.cancelled"), nil)
	}
}

type EditSnapshot struct {
	SessionID    string          `json:"sessionId"`
	State        State           `json:"state"`
	FIRID        string          `json:"firId"`
	ProceedingID string          `json:"proceedingId"`
	WritType     domain.WritType `json:"writType"`
	Draft        bool            `json:"draft"`
	TypeChanged  bool            `json:"typeChanged"`
	Closed       bool            `json:"closed"`
	Form         FormView        `json:"form"`
}

func (p *ProceedingEdit) Snapshot() EditSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return EditSnapshot{
		SessionID:    p.id,
		State:        p.state,
		FIRID:        p.firID,
		ProceedingID: p.procID,
		WritType:     p.writType,
		Draft:        p.draft,
		TypeChanged:  p.typeChanged,
		Closed:       p.closed,
		Form:         p.form.view(),
	}
}
