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

// Filing is one session of the two-step case filing form. Step 1 holds the
// case particulars, Step 2 the first proceeding and its decision.
type Filing struct {
	session
	eng Engine

	firID   string
	draftID string
	// editMode is set for EditCompleted sessions, which never reach Step 2.
	editMode           bool
	resumingIncomplete bool
	hasArgument        bool

	fir  domain.FIR
	form *proceedingForm
}

func (e Engine) NewFiling() *Filing {
	return &Filing{session: newSession(StateNew), eng: e}
}

func (f *Filing) event(typ string) events.Event {
	return events.Event{Type: typ, SessionID: f.id, FIRID: f.firID, EntityKind: "fir", EntityID: f.firID}
}

// Open starts a new case: one empty officer and one empty respondent.
func (f *Filing) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("open", StateNew); err != nil {
		return err
	}
	f.fir = domain.FIR{
		InvestigatingOfficers: []domain.Officer{{}},
		Respondents:           []domain.Respondent{{}},
	}
	f.state = StateStep1
	return nil
}

// Resume re-enters Step 2 of a case that has no non-draft proceeding yet. An
// existing draft is loaded; otherwise Step 2 starts empty with the case's
// filing date as the hearing date.
func (f *Filing) Resume(ctx context.Context, firID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("resume", StateNew); err != nil {
		return err
	}
	var (
		fir   domain.FIR
		ps    []domain.Proceeding
		draft *domain.Proceeding
	)
	err := f.dispatch(ctx, func(ctx context.Context) error {
		var err error
		if fir, err = f.eng.Repo.FIR(ctx, firID); err != nil {
			return err
		}
		if ps, err = f.eng.Repo.ProceedingsByFIR(ctx, firID); err != nil {
			return err
		}
		draft, err = f.eng.Repo.DraftProceeding(ctx, firID)
		return err
	})
	if err != nil {
		return err
	}
	for _, p := range ps {
		if !p.Draft {
			return apperr.State(fmt.Sprintf("case %s already has a filed proceeding; edit it instead", firID))
		}
	}
	form := newForm(domain.NoticeOfMotionType, fir.FIRDate)
	if draft != nil {
		if form, err = loadForm(*draft); err != nil {
			return err
		}
		f.draftID = draft.ID
	}
	f.fir = fir.Clone()
	f.firID = fir.ID
	f.resumingIncomplete = draft == nil
	f.form = &form
	f.state = StateStep2Draft
	ev := f.event("filing.resumed")
	ev.Payload = events.EventPayload{"draft": f.draftID, "incomplete": f.resumingIncomplete}
	f.eng.record(ctx, ev, nil)
	return nil
}

// EditCompleted reopens Step 1 of a case that already has a filed proceeding.
func (f *Filing) EditCompleted(ctx context.Context, firID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("edit", StateNew); err != nil {
		return err
	}
	var (
		fir domain.FIR
		ps  []domain.Proceeding
	)
	err := f.dispatch(ctx, func(ctx context.Context) error {
		var err error
		if fir, err = f.eng.Repo.FIR(ctx, firID); err != nil {
			return err
		}
		ps, err = f.eng.Repo.ProceedingsByFIR(ctx, firID)
		return err
	})
	if err != nil {
		return err
	}
	complete := false
	for _, p := range ps {
		if p.Draft {
			continue
		}
		complete = true
		if p.Type == domain.ArgumentType {
			f.hasArgument = true
		}
	}
	if !complete {
		return apperr.State(fmt.Sprintf("case %s has no filed proceeding; resume it instead", firID))
	}
	f.fir = fir.Clone()
	f.firID = fir.ID
	f.editMode = true
	f.state = StateStep1
	return nil
}

func (f *Filing) step1(op string, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(op, StateStep1); err != nil {
		return err
	}
	return fn()
}

// SetParticulars replaces the filing particulars and petitioner. Officers,
// respondents and the writ type have their own operations.
func (f *Filing) SetParticulars(p domain.FIR) error {
	return f.step1("set particulars", func() error {
		f.fir.WritSubType = p.WritSubType
		f.fir.WritYear = p.WritYear
		f.fir.WritNumber = p.WritNumber
		f.fir.FIRNumber = p.FIRNumber
		f.fir.UnderSection = p.UnderSection
		f.fir.Act = p.Act
		f.fir.PoliceStation = p.PoliceStation
		f.fir.Branch = p.Branch
		f.fir.FIRDate = p.FIRDate
		f.fir.Petitioner = p.Petitioner
		return nil
	})
}

// SetWritType changes the writ type. Leaving QUASHING while an ARGUMENT
// proceeding is selected resets the proceeding to NOTICE_OF_MOTION.
func (f *Filing) SetWritType(w domain.WritType) error {
	return f.step1("set writ type", func() error {
		f.fir.WritType = w
		if f.form != nil && !f.form.entries.Type.AllowedFor(w) {
			f.form.switchType(domain.NoticeOfMotionType)
		}
		return nil
	})
}

func (f *Filing) AddOfficer(o domain.Officer) error {
	return f.step1("add officer", func() error {
		f.fir.InvestigatingOfficers = append(f.fir.InvestigatingOfficers, o)
		return nil
	})
}

func (f *Filing) SetOfficer(i int, o domain.Officer) error {
	return f.step1("set officer", func() error {
		if i < 0 || i >= len(f.fir.InvestigatingOfficers) {
			return apperr.Validationf("investigatingOfficers", "index %d out of range", i)
		}
		f.fir.InvestigatingOfficers[i] = o
		return nil
	})
}

func (f *Filing) RemoveOfficer(i int) error {
	return f.step1("remove officer", func() error {
		n := len(f.fir.InvestigatingOfficers)
		if i < 0 || i >= n {
			return apperr.Validationf("investigatingOfficers", "index %d out of range", i)
		}
		if n == 1 {
			return apperr.Validation("investigatingOfficers", "at least one investigating officer is required")
		}
		f.fir.InvestigatingOfficers = append(f.fir.InvestigatingOfficers[:i:i], f.fir.InvestigatingOfficers[i+1:]...)
		return nil
	})
}

func (f *Filing) AddRespondent(r domain.Respondent) error {
	return f.step1("add respondent", func() error {
		f.fir.Respondents = append(f.fir.Respondents, r)
		return nil
	})
}

func (f *Filing) SetRespondent(i int, r domain.Respondent) error {
	return f.step1("set respondent", func() error {
		if i < 0 || i >= len(f.fir.Respondents) {
			return apperr.Validationf("respondents", "index %d out of range", i)
		}
		f.fir.Respondents[i] = r
		return nil
	})
}

func (f *Filing) RemoveRespondent(i int) error {
	return f.step1("remove respondent", func() error {
		n := len(f.fir.Respondents)
		if i < 0 || i >= n {
			return apperr.Validationf("respondents", "index %d out of range", i)
		}
		if n == 1 {
			return apperr.Validation("respondents", "at least one respondent is required")
		}
		f.fir.Respondents = append(f.fir.Respondents[:i:i], f.fir.Respondents[i+1:]...)
		return nil
	})
}

// SubmitStep1 validates the particulars and persists the case, creating it
// on first submit. In edit mode it only moves to STEP1_FINAL_CONFIRM.
func (f *Filing) SubmitStep1(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("submit step 1", StateStep1); err != nil {
		return err
	}
	if err := validateStep1(f.fir, f.editMode && f.hasArgument); err != nil {
		return err
	}
	if f.editMode {
		f.state = StateStep1Confirm
		return nil
	}
	body := trimmedParties(f.fir)
	firID := f.firID
	typ := "case.created"
	if firID != "" {
		typ = "case.updated"
	}
	var saved domain.FIR
	err := f.dispatch(ctx, func(ctx context.Context) error {
		var err error
		if firID == "" {
			saved, err = f.eng.Repo.CreateFIR(ctx, body)
		} else {
			saved, err = f.eng.Repo.UpdateFIR(ctx, firID, body)
		}
		return err
	})
	if err != nil {
		f.eng.record(ctx, f.event(typ), err)
		return err
	}
	f.fir = saved
	f.firID = saved.ID
	if f.form == nil {
		form := newForm(domain.NoticeOfMotionType, saved.FIRDate)
		f.form = &form
	} else if !f.form.entries.Type.AllowedFor(saved.WritType) {
		f.form.switchType(domain.NoticeOfMotionType)
	}
	f.state = StateStep2Draft
	f.eng.record(ctx, f.event(typ), nil)
	return nil
}

// ConfirmStep1 saves an edited case and ends the session.
func (f *Filing) ConfirmStep1(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("confirm step 1", StateStep1Confirm); err != nil {
		return err
	}
	if err := validateStep1(f.fir, f.hasArgument); err != nil {
		return err
	}
	body := trimmedParties(f.fir)
	firID := f.firID
	var saved domain.FIR
	err := f.dispatch(ctx, func(ctx context.Context) error {
		var err error
		saved, err = f.eng.Repo.UpdateFIR(ctx, firID, body)
		return err
	})
	f.eng.record(ctx, f.event("case.updated"), err)
	if err != nil {
		return err
	}
	f.fir = saved
	f.finish(StateSubmitted)
	return nil
}

// BackToStep1 leaves Step 2 or the edit confirmation. Step 2 input is kept.
func (f *Filing) BackToStep1() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("back to step 1", StateStep2Draft, StateStep1Confirm); err != nil {
		return err
	}
	f.state = StateStep1
	return nil
}

func (f *Filing) step2(op string, fn func(form *proceedingForm) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(op, StateStep2Draft); err != nil {
		return err
	}
	return fn(f.form)
}

// AvailableTypes lists the proceeding types the case's writ type allows.
func (f *Filing) AvailableTypes() []domain.ProceedingType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return availableTypes(f.fir.WritType)
}

// SelectType switches the Step 2 proceeding type. Persisted files of the
// previous type are queued for deletion and the entries reset.
func (f *Filing) SelectType(t domain.ProceedingType) error {
	return f.step2("select type", func(form *proceedingForm) error {
		if err := validateType(t, f.fir.WritType); err != nil {
			return err
		}
		if form.entries.Type != t {
			form.switchType(t)
		}
		return nil
	})
}

func (f *Filing) SetHearing(h domain.HearingDetails) error {
	return f.step2("set hearing", func(form *proceedingForm) error {
		form.hearing = h
		return nil
	})
}

// SetDecision sets or, with nil, clears the decision details.
func (f *Filing) SetDecision(d *domain.DecisionDetails) error {
	return f.step2("set decision", func(form *proceedingForm) error {
		form.setDecision(d)
		return nil
	})
}

func (f *Filing) EditEntries(fn func(e *normalize.Editable)) error {
	return f.step2("edit entries", func(form *proceedingForm) error { return form.editEntries(fn) })
}

func (f *Filing) AddEntry() error {
	return f.step2("add entry", func(form *proceedingForm) error {
		form.addEntry()
		return nil
	})
}

// RemoveEntry deletes entry i. Pending uploads of later entries move down with them.
func (f *Filing) RemoveEntry(i int) error {
	return f.step2("remove entry", func(form *proceedingForm) error { return form.removeEntry(i) })
}

func (f *Filing) Attach(i int, file attachments.File) error {
	return f.step2("attach", func(form *proceedingForm) error { return form.attach(i, file) })
}

func (f *Filing) Detach(i int) error {
	return f.step2("detach", func(form *proceedingForm) error { return form.detach(i) })
}

func (f *Filing) AttachDecision(file attachments.File) error {
	return f.step2("attach decision", func(form *proceedingForm) error { return form.ledger.AttachDecision(file) })
}

func (f *Filing) AttachOrder(file attachments.File) error {
	return f.step2("attach order", func(form *proceedingForm) error { return form.ledger.AttachOrder(file) })
}

// RemoveExistingAttachment queues the persisted file of entry i for deletion.
func (f *Filing) RemoveExistingAttachment(i int) error {
	return f.step2("remove attachment", func(form *proceedingForm) error { return form.removeExisting(i) })
}

func (f *Filing) RemoveDecisionAttachment() error {
	return f.step2("remove decision attachment", func(form *proceedingForm) error {
		form.removeDecisionAttachment()
		return nil
	})
}

func (f *Filing) RemoveOrder() error {
	return f.step2("remove order", func(form *proceedingForm) error {
		form.removeOrder()
		return nil
	})
}

// saveProceeding persists the Step 2 form, updating the draft when one exists.
func (f *Filing) saveProceeding(ctx context.Context, draft bool) (domain.Proceeding, error) {
	w := f.form.write(f.firID, draft)
	draftID := f.draftID
	var saved domain.Proceeding
	err := f.dispatch(ctx, func(ctx context.Context) error {
		var err error
		if draftID == "" {
			saved, err = f.eng.Repo.CreateProceeding(ctx, w)
		} else {
			saved, err = f.eng.Repo.UpdateProceeding(ctx, draftID, w)
		}
		return err
	})
	ev := f.event("proceeding.saved")
	ev.EntityKind = "proceeding"
	ev.EntityID = saved.ID
	ev.Payload = events.EventPayload{"draft": draft, "type": string(w.Payload.Type), "uploads": len(w.Files.Files), "deleted": len(w.Files.Delete)}
	f.eng.record(ctx, ev, err)
	return saved, err
}

// SaveDraft stores Step 2 as a draft and closes the form. The case can be
// resumed later.
func (f *Filing) SaveDraft(ctx context.Context) (domain.Proceeding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("save draft", StateStep2Draft); err != nil {
		return domain.Proceeding{}, err
	}
	if err := validateType(f.form.entries.Type, f.fir.WritType); err != nil {
		return domain.Proceeding{}, err
	}
	saved, err := f.saveProceeding(ctx, true)
	if err != nil {
		return domain.Proceeding{}, err
	}
	f.draftID = saved.ID
	if err := f.form.saved(saved); err != nil {
		return saved, err
	}
	f.closed = true
	return saved, nil
}

// RequestFinalSubmit validates Step 2 for a non-draft save and asks for confirmation.
func (f *Filing) RequestFinalSubmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("request final submit", StateStep2Draft); err != nil {
		return err
	}
	if err := f.form.validateFinal(f.fir.WritType); err != nil {
		return err
	}
	f.state = StateStep2Confirm
	return nil
}

func (f *Filing) CancelFinalSubmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("cancel final submit", StateStep2Confirm); err != nil {
		return err
	}
	f.state = StateStep2Draft
	return nil
}

// ConfirmFinalSubmit persists the proceeding as final and ends the session.
// On failure the session stays in STEP2_FINAL_CONFIRM with every input kept.
func (f *Filing) ConfirmFinalSubmit(ctx context.Context) (domain.Proceeding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("confirm final submit", StateStep2Confirm); err != nil {
		return domain.Proceeding{}, err
	}
	saved, err := f.saveProceeding(ctx, false)
	if err != nil {
		return domain.Proceeding{}, err
	}
	f.finish(StateSubmitted)
	return saved, nil
}

// finish resets the session after a successful final save. The caller holds mu.
func (f *Filing) finish(st State) {
	f.state = st
	f.closed = true
	f.draftID = ""
	f.editMode = false
	f.resumingIncomplete = false
	f.hasArgument = false
	f.form = nil
}

// Cancel closes the session. A request still in flight completes on the
// server but its response is discarded.
func (f *Filing) Cancel() {
	if f.cancel() {
		f.eng.record(context.Background(), f.event("filing.cancelled"), nil)
	}
}

type FilingSnapshot struct {
	SessionID          string     `json:"sessionId"`
	State              State      `json:"state"`
	FIRID              string     `json:"firId,omitempty"`
	DraftID            string     `json:"draftId,omitempty"`
	EditMode           bool       `json:"editMode"`
	ResumingIncomplete bool       `json:"resumingIncomplete"`
	HasArgument        bool       `json:"hasArgumentProceeding"`
	Closed             bool       `json:"closed"`
	InFlight           bool       `json:"inFlight"`
	Case               domain.FIR `json:"case"`
	Step2              *FormView  `json:"step2,omitempty"`
}

func (f *Filing) Snapshot() FilingSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := FilingSnapshot{
		SessionID:          f.id,
		State:              f.state,
		FIRID:              f.firID,
		DraftID:            f.draftID,
		EditMode:           f.editMode,
		ResumingIncomplete: f.resumingIncomplete,
		HasArgument:        f.hasArgument,
		Closed:             f.closed,
		InFlight:           f.inFlight,
		Case:               f.fir,
	}
	s.Case.InvestigatingOfficers = append([]domain.Officer(nil), f.fir.InvestigatingOfficers...)
	s.Case.Respondents = append([]domain.Respondent(nil), f.fir.Respondents...)
	if f.form != nil {
		v := f.form.view()
		s.Step2 = &v
	}
	return s
}
