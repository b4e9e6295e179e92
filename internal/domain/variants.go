package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entries is the in-memory form of a variant payload: an ordered sequence of
// entries. The service stores a single entry as a bare object and two or more
// as an array; that collapse happens only here, at the JSON boundary.
type Entries[T any] []T

func (e Entries[T]) MarshalJSON() ([]byte, error) {
	if len(e) == 1 {
		return json.Marshal(e[0])
	}
	return json.Marshal([]T(e))
}

func (e *Entries[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*e = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*e = items
	case '{':
		var item T
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return err
		}
		*e = Entries[T]{item}
	default:
		return fmt.Errorf("entries: expected object or array, got %q", trimmed[:1])
	}
	return nil
}

// OfficerRef is the structured officer carried by newer records. Older records
// stored the officer as a bare name string; both decode into this shape.
type OfficerRef struct {
	Name   string `json:"name,omitempty"`
	Rank   string `json:"rank,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

func (o OfficerRef) IsZero() bool {
	return o.Name == "" && o.Rank == "" && o.Mobile == ""
}

func (o *OfficerRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*o = OfficerRef{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*o = OfficerRef{Name: name}
		return nil
	}
	type plain OfficerRef
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*o = OfficerRef(p)
	return nil
}

type NoticeOfMotion struct {
	AttendanceMode AttendanceMode `json:"attendanceMode,omitempty"`
	// BY_FORMAT
	FormatFilledBy    string `json:"formatFilledBy,omitempty"`
	FormatSubmittedOn string `json:"formatSubmittedOn,omitempty"`
	// BY_PERSON
	AppearingAG          string      `json:"appearingAG,omitempty"`
	InvestigatingOfficer *OfficerRef `json:"investigatingOfficer,omitempty"`
	// OfficerName is the legacy free-text officer field.
	OfficerName string `json:"officerName,omitempty"`
	Details     string `json:"details,omitempty"`
	Attachment  string `json:"attachment,omitempty"`
}

// ReplyTracking is the persisted shape of a TO_FILE_REPLY entry.
type ReplyTracking struct {
	OfficerDeputed           string `json:"officerDeputed,omitempty"`
	VettingOfficerDetails    string `json:"vettingOfficerDetails,omitempty"`
	ReplyFiled               bool   `json:"replyFiled"`
	ReplyFilingDate          string `json:"replyFilingDate"`
	AdvocateGeneralName      string `json:"advocateGeneralName,omitempty"`
	ReplyScrutinizedByHC     bool   `json:"replyScrutinizedByHC"`
	InvestigatingOfficerName string `json:"investigatingOfficerName,omitempty"`
	ProceedingInCourt        string `json:"proceedingInCourt,omitempty"`
	OrderInShort             string `json:"orderInShort,omitempty"`
	NextActionablePoint      string `json:"nextActionablePoint,omitempty"`
	NextDateOfHearingReply   string `json:"nextDateOfHearingReply,omitempty"`
	Attachment               string `json:"attachment,omitempty"`
}

type Argument struct {
	ArgumentBy        string `json:"argumentBy,omitempty"`
	ArgumentWith      string `json:"argumentWith,omitempty"`
	NextDateOfHearing string `json:"nextDateOfHearing,omitempty"`
	Attachment        string `json:"attachment,omitempty"`
}

type AnyOther struct {
	AttendingOfficer string     `json:"attendingOfficer,omitempty"`
	Officer          OfficerRef `json:"officer"`
	AppearingAG      string     `json:"appearingAG,omitempty"`
	Details          string     `json:"details,omitempty"`
	Attachment       string     `json:"attachment,omitempty"`
}
