package engine

import (
	"fmt"
	"strings"

	"writline/internal/apperr"
	"writline/internal/domain"
)

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// validateStep1 checks the case particulars before they are persisted.
// lockedToQuashing is set when a non-draft ARGUMENT proceeding already exists.
func validateStep1(f domain.FIR, lockedToQuashing bool) error {
	if f.WritType == "" {
		return apperr.Validation("writType", "writ type is required")
	}
	if lockedToQuashing && f.WritType != domain.WritQuashing {
		return apperr.Validation("writType", "writ type is locked to QUASHING while an ARGUMENT proceeding exists")
	}
	named := false
	for _, r := range f.Respondents {
		if !blank(r.Name) {
			named = true
			break
		}
	}
	if !named {
		return apperr.Validation("respondents", "at least one respondent with a name is required")
	}
	if len(f.InvestigatingOfficers) == 0 {
		return apperr.Validation("investigatingOfficers", "at least one investigating officer is required")
	}
	for i, o := range f.InvestigatingOfficers {
		field := func(name string) string { return fmt.Sprintf("investigatingOfficers[%d].%s", i, name) }
		switch {
		case blank(o.Name):
			return apperr.Validation(field("name"), "required")
		case blank(o.Rank):
			return apperr.Validation(field("rank"), "required")
		case blank(o.Posting):
			return apperr.Validation(field("posting"), "required")
		}
	}
	return nil
}

// validateHearing applies to non-draft proceedings only.
func validateHearing(h domain.HearingDetails) error {
	switch {
	case blank(h.DateOfHearing):
		return apperr.Validation("hearingDetails.dateOfHearing", "required")
	case blank(h.JudgeName):
		return apperr.Validation("hearingDetails.judgeName", "required")
	case blank(h.CourtNumber):
		return apperr.Validation("hearingDetails.courtNumber", "required")
	}
	return nil
}

func validateType(t domain.ProceedingType, w domain.WritType) error {
	if !t.Valid() {
		return apperr.Validationf("type", "unknown proceeding type %q", t)
	}
	if !t.AllowedFor(w) {
		return apperr.Validationf("type", "%s proceedings are only allowed for QUASHING writs", t)
	}
	return nil
}

// availableTypes lists the proceeding types selectable for writ type w.
func availableTypes(w domain.WritType) []domain.ProceedingType {
	var out []domain.ProceedingType
	for _, t := range domain.ProceedingTypes {
		if t.AllowedFor(w) {
			out = append(out, t)
		}
	}
	return out
}

// trimmedParties drops respondents left without a name. Officers are kept:
// every one of them must validate.
func trimmedParties(f domain.FIR) domain.FIR {
	out := f.Particulars()
	out.Respondents = out.Respondents[:0]
	for _, r := range f.Respondents {
		if !blank(r.Name) {
			r.Name = strings.TrimSpace(r.Name)
			out.Respondents = append(out.Respondents, r)
		}
	}
	for i := range out.InvestigatingOfficers {
		o := &out.InvestigatingOfficers[i]
		o.Name = strings.TrimSpace(o.Name)
		o.Rank = strings.TrimSpace(o.Rank)
		o.Posting = strings.TrimSpace(o.Posting)
	}
	return out
}
