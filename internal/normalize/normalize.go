// Package normalize converts proceeding payloads between their four persisted
// variant shapes and the editable entry sequences the workflows operate on.
// Every function here is pure.
package normalize

import (
	"fmt"

	"writline/internal/domain"
)

// MotionForm is the editable entry shared by NOTICE_OF_MOTION and TO_FILE_REPLY.
// Reply entries fill the reply fields plus the common ones the rename map
// points at; motion entries never carry reply fields.
type MotionForm struct {
	AttendanceMode    domain.AttendanceMode `json:"attendanceMode,omitempty"`
	FormatFilledBy    string                `json:"formatFilledBy,omitempty"`
	FormatSubmittedOn string                `json:"formatSubmittedOn,omitempty"`
	AppearingAG       string                `json:"appearingAG,omitempty"`
	Officer           domain.OfficerRef     `json:"officer"`
	Details           string                `json:"details,omitempty"`
	Attachment        string                `json:"attachment,omitempty"`

	OfficerDeputed      string `json:"officerDeputed,omitempty"`
	VettingOfficer      string `json:"vettingOfficer,omitempty"`
	ReplyFiled          bool   `json:"replyFiled,omitempty"`
	ReplyFilingDate     string `json:"replyFilingDate,omitempty"`
	ReplyScrutinized    bool   `json:"replyScrutinized,omitempty"`
	OrderInShort        string `json:"orderInShort,omitempty"`
	NextActionablePoint string `json:"nextActionablePoint,omitempty"`
	NextHearingDate     string `json:"nextHearingDate,omitempty"`
}

// Editable is the working copy of a proceeding's variant payload. Only the
// slice matching Type is used; it always holds at least one entry.
type Editable struct {
	Type     domain.ProceedingType
	Motion   []MotionForm
	Argument []domain.Argument
	AnyOther []domain.AnyOther
}

// Empty returns a payload of type t with one blank entry.
func Empty(t domain.ProceedingType) Editable {
	e := Editable{Type: t}
	e.Add()
	return e
}

func (e Editable) Len() int {
	switch e.Type {
	case domain.NoticeOfMotionType, domain.ToFileReplyType:
		return len(e.Motion)
	case domain.ArgumentType:
		return len(e.Argument)
	case domain.AnyOtherType:
		return len(e.AnyOther)
	}
	return 0
}

func (e *Editable) Add() {
	switch e.Type {
	case domain.NoticeOfMotionType, domain.ToFileReplyType:
		e.Motion = append(e.Motion, MotionForm{})
	case domain.ArgumentType:
		e.Argument = append(e.Argument, domain.Argument{})
	case domain.AnyOtherType:
		e.AnyOther = append(e.AnyOther, domain.AnyOther{})
	}
}

// Remove deletes entry i. The last remaining entry cannot be removed.
func (e *Editable) Remove(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	if e.Len() == 1 {
		return fmt.Errorf("cannot remove the only %s entry", e.Type)
	}
	switch e.Type {
	case domain.NoticeOfMotionType, domain.ToFileReplyType:
		e.Motion = append(e.Motion[:i:i], e.Motion[i+1:]...)
	case domain.ArgumentType:
		e.Argument = append(e.Argument[:i:i], e.Argument[i+1:]...)
	case domain.AnyOtherType:
		e.AnyOther = append(e.AnyOther[:i:i], e.AnyOther[i+1:]...)
	}
	return nil
}

func (e Editable) check(i int) error {
	if i < 0 || i >= e.Len() {
		return fmt.Errorf("entry index %d out of range [0,%d)", i, e.Len())
	}
	return nil
}

// AttachmentAt returns the persisted attachment filename of entry i.
func (e Editable) AttachmentAt(i int) string {
	if e.check(i) != nil {
		return ""
	}
	switch e.Type {
	case domain.NoticeOfMotionType, domain.ToFileReplyType:
		return e.Motion[i].Attachment
	case domain.ArgumentType:
		return e.Argument[i].Attachment
	case domain.AnyOtherType:
		return e.AnyOther[i].Attachment
	}
	return ""
}

func (e *Editable) SetAttachment(i int, name string) error {
	if err := e.check(i); err != nil {
		return err
	}
	switch e.Type {
	case domain.NoticeOfMotionType, domain.ToFileReplyType:
		e.Motion[i].Attachment = name
	case domain.ArgumentType:
		e.Argument[i].Attachment = name
	case domain.AnyOtherType:
		e.AnyOther[i].Attachment = name
	}
	return nil
}

// Attachments lists every non-empty persisted filename across the entries.
func (e Editable) Attachments() []string {
	var out []string
	for i := 0; i < e.Len(); i++ {
		if name := e.AttachmentAt(i); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (e Editable) Clone() Editable {
	return Editable{
		Type:     e.Type,
		Motion:   append([]MotionForm(nil), e.Motion...),
		Argument: append([]domain.Argument(nil), e.Argument...),
		AnyOther: append([]domain.AnyOther(nil), e.AnyOther...),
	}
}

// Load turns a persisted proceeding into its editable entries.
func Load(p domain.Proceeding) (Editable, error) {
	e := Editable{Type: p.Type}
	switch p.Type {
	case domain.NoticeOfMotionType:
		for _, n := range p.NoticeOfMotion {
			e.Motion = append(e.Motion, formFromMotion(n))
		}
	case domain.ToFileReplyType:
		for _, r := range p.ReplyTracking {
			e.Motion = append(e.Motion, formFromReply(r))
		}
	case domain.ArgumentType:
		e.Argument = append(e.Argument, p.ArgumentDetails...)
	case domain.AnyOtherType:
		e.AnyOther = append(e.AnyOther, p.AnyOtherDetails...)
	default:
		return Editable{}, fmt.Errorf("unknown proceeding type %q", p.Type)
	}
	if e.Len() == 0 {
		e.Add()
	}
	return e, nil
}

// resolveOfficer picks the structured officer when present and falls back to
// the legacy free-text name.
func resolveOfficer(n domain.NoticeOfMotion) domain.OfficerRef {
	if n.InvestigatingOfficer != nil && !n.InvestigatingOfficer.IsZero() {
		return *n.InvestigatingOfficer
	}
	if n.OfficerName != "" {
		return domain.OfficerRef{Name: n.OfficerName}
	}
	return domain.OfficerRef{}
}

func formFromMotion(n domain.NoticeOfMotion) MotionForm {
	return MotionForm{
		AttendanceMode:    n.AttendanceMode,
		FormatFilledBy:    n.FormatFilledBy,
		FormatSubmittedOn: n.FormatSubmittedOn,
		AppearingAG:       n.AppearingAG,
		Officer:           resolveOfficer(n),
		Details:           n.Details,
		Attachment:        n.Attachment,
	}
}

func motionFromForm(f MotionForm) domain.NoticeOfMotion {
	n := domain.NoticeOfMotion{
		AttendanceMode: f.AttendanceMode,
		Details:        f.Details,
		Attachment:     f.Attachment,
	}
	if f.AttendanceMode != domain.ByPerson {
		n.FormatFilledBy = f.FormatFilledBy
		n.FormatSubmittedOn = f.FormatSubmittedOn
	}
	if f.AttendanceMode != domain.ByFormat {
		n.AppearingAG = f.AppearingAG
		if !f.Officer.IsZero() {
			officer := f.Officer
			n.InvestigatingOfficer = &officer
		}
	}
	return n
}

// formFromReply and replyFromForm are the reply rename map. Fields of the form
// that have no reply counterpart stay zero on load and are dropped on save.
func formFromReply(r domain.ReplyTracking) MotionForm {
	return MotionForm{
		AppearingAG:         r.AdvocateGeneralName,
		Officer:             domain.OfficerRef{Name: r.InvestigatingOfficerName},
		Details:             r.ProceedingInCourt,
		Attachment:          r.Attachment,
		OfficerDeputed:      r.OfficerDeputed,
		VettingOfficer:      r.VettingOfficerDetails,
		ReplyFiled:          r.ReplyFiled,
		ReplyFilingDate:     r.ReplyFilingDate,
		ReplyScrutinized:    r.ReplyScrutinizedByHC,
		OrderInShort:        r.OrderInShort,
		NextActionablePoint: r.NextActionablePoint,
		NextHearingDate:     r.NextDateOfHearingReply,
	}
}

func replyFromForm(f MotionForm) domain.ReplyTracking {
	return domain.ReplyTracking{
		OfficerDeputed:           f.OfficerDeputed,
		VettingOfficerDetails:    f.VettingOfficer,
		ReplyFiled:               f.ReplyFiled,
		ReplyFilingDate:          f.ReplyFilingDate,
		AdvocateGeneralName:      f.AppearingAG,
		ReplyScrutinizedByHC:     f.ReplyScrutinized,
		InvestigatingOfficerName: f.Officer.Name,
		ProceedingInCourt:        f.Details,
		OrderInShort:             f.OrderInShort,
		NextActionablePoint:      f.NextActionablePoint,
		NextDateOfHearingReply:   f.NextHearingDate,
		Attachment:               f.Attachment,
	}
}

// Payload is the persistence projection of an Editable. Exactly one channel is set.
type Payload struct {
	Type           domain.ProceedingType
	NoticeOfMotion domain.Entries[domain.NoticeOfMotion]
	ReplyTracking  domain.Entries[domain.ReplyTracking]
	Argument       domain.Entries[domain.Argument]
	AnyOther       domain.Entries[domain.AnyOther]
}

func Save(e Editable) Payload {
	p := Payload{Type: e.Type}
	switch e.Type {
	case domain.NoticeOfMotionType:
		for _, f := range e.Motion {
			p.NoticeOfMotion = append(p.NoticeOfMotion, motionFromForm(f))
		}
	case domain.ToFileReplyType:
		for _, f := range e.Motion {
			p.ReplyTracking = append(p.ReplyTracking, replyFromForm(f))
		}
	case domain.ArgumentType:
		p.Argument = append(p.Argument, e.Argument...)
	case domain.AnyOtherType:
		p.AnyOther = append(p.AnyOther, e.AnyOther...)
	}
	return p
}

// Apply writes the payload onto dst, clearing the channels of other types.
func (p Payload) Apply(dst *domain.Proceeding) {
	dst.Type = p.Type
	dst.NoticeOfMotion = p.NoticeOfMotion
	dst.ReplyTracking = p.ReplyTracking
	dst.ArgumentDetails = p.Argument
	dst.AnyOtherDetails = p.AnyOther
}

// Value returns the active channel's entries for serialization.
func (p Payload) Value() any {
	switch p.Type {
	case domain.NoticeOfMotionType:
		return p.NoticeOfMotion
	case domain.ToFileReplyType:
		return p.ReplyTracking
	case domain.ArgumentType:
		return p.Argument
	case domain.AnyOtherType:
		return p.AnyOther
	}
	return nil
}
