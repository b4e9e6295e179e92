package normalize

import (
	"fmt"
	"strings"

	"writline/internal/apperr"
	"writline/internal/domain"
)

// ValidateFinal checks the fields a non-draft save requires. Drafts are saved
// without it. A date gated by a boolean is only required when the gate is set.
func ValidateFinal(e Editable) error {
	if !e.Type.Valid() {
		return apperr.Validationf("type", "unknown proceeding type %q", e.Type)
	}
	if e.Len() == 0 {
		return apperr.Validation(e.Type.Channel(), "at least one entry is required")
	}
	for i := 0; i < e.Len(); i++ {
		if err := validateEntry(e, i); err != nil {
			return err
		}
	}
	return nil
}

func validateEntry(e Editable, i int) error {
	field := func(name string) string { return fmt.Sprintf("%s[%d].%s", e.Type.Channel(), i, name) }
	switch e.Type {
	case domain.NoticeOfMotionType:
		f := e.Motion[i]
		switch f.AttendanceMode {
		case domain.ByFormat:
			if blank(f.FormatFilledBy) {
				return apperr.Validation(field("formatFilledBy"), "required when attending by format")
			}
			if blank(f.FormatSubmittedOn) {
				return apperr.Validation(field("formatSubmittedOn"), "required when attending by format")
			}
		case domain.ByPerson:
			if blank(f.AppearingAG) {
				return apperr.Validation(field("appearingAG"), "required when attending in person")
			}
			if blank(f.Officer.Name) {
				return apperr.Validation(field("investigatingOfficer"), "required when attending in person")
			}
		default:
			return apperr.Validation(field("attendanceMode"), "must be BY_FORMAT or BY_PERSON")
		}
		if blank(f.Details) {
			return apperr.Validation(field("details"), "required")
		}
	case domain.ToFileReplyType:
		f := e.Motion[i]
		if blank(f.OfficerDeputed) {
			return apperr.Validation(field("officerDeputed"), "required")
		}
		if f.ReplyFiled && blank(f.ReplyFilingDate) {
			return apperr.Validation(field("replyFilingDate"), "required when the reply is filed")
		}
	case domain.ArgumentType:
		if blank(e.Argument[i].ArgumentBy) {
			return apperr.Validation(field("argumentBy"), "required")
		}
	case domain.AnyOtherType:
		if blank(e.AnyOther[i].Details) {
			return apperr.Validation(field("details"), "required")
		}
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
