package domain

type WritType string

const (
	WritBail                 WritType = "BAIL"
	WritQuashing             WritType = "QUASHING"
	WritDirection            WritType = "DIRECTION"
	WritSuspensionOfSentence WritType = "SUSPENSION_OF_SENTENCE"
	WritParole               WritType = "PAROLE"
	WritAnyOther             WritType = "ANY_OTHER"
)

type ProceedingType string

const (
	NoticeOfMotionType ProceedingType = "NOTICE_OF_MOTION"
	ToFileReplyType    ProceedingType = "TO_FILE_REPLY"
	ArgumentType       ProceedingType = "ARGUMENT"
	AnyOtherType       ProceedingType = "ANY_OTHER"
)

// ProceedingTypes lists every proceeding type in display order.
var ProceedingTypes = []ProceedingType{NoticeOfMotionType, ToFileReplyType, ArgumentType, AnyOtherType}

func (t ProceedingType) Valid() bool {
	switch t {
	case NoticeOfMotionType, ToFileReplyType, ArgumentType, AnyOtherType:
		return true
	}
	return false
}

// Channel is the payload field (and attachment channel) that carries entries of this type.
func (t ProceedingType) Channel() string {
	switch t {
	case NoticeOfMotionType:
		return "noticeOfMotion"
	case ToFileReplyType:
		return "replyTracking"
	case ArgumentType:
		return "argumentDetails"
	case AnyOtherType:
		return "anyOtherDetails"
	}
	return ""
}

// AllowedFor reports whether a proceeding of this type may be recorded for a case of writ type w.
func (t ProceedingType) AllowedFor(w WritType) bool {
	if t == ArgumentType {
		return w == WritQuashing
	}
	return t.Valid()
}

type AttendanceMode string

const (
	ByFormat AttendanceMode = "BY_FORMAT"
	ByPerson AttendanceMode = "BY_PERSON"
)

type Officer struct {
	Name       string `json:"name"`
	Rank       string `json:"rank"`
	Posting    string `json:"posting"`
	Contact    string `json:"contact,omitempty"`
	TenureFrom string `json:"tenureFrom,omitempty"`
	TenureTo   string `json:"tenureTo,omitempty"`
}

type Respondent struct {
	Name        string `json:"name"`
	Designation string `json:"designation,omitempty"`
}

type Petitioner struct {
	Name       string `json:"name,omitempty"`
	FatherName string `json:"fatherName,omitempty"`
	Address    string `json:"address,omitempty"`
	Contact    string `json:"contact,omitempty"`
}

type FIR struct {
	ID                    string       `json:"id,omitempty"`
	WritType              WritType     `json:"writType"`
	WritSubType           string       `json:"writSubType,omitempty"`
	WritYear              int          `json:"writYear,omitempty"`
	WritNumber            string       `json:"writNumber,omitempty"`
	FIRNumber             string       `json:"firNumber,omitempty"`
	UnderSection          string       `json:"underSection,omitempty"`
	Act                   string       `json:"act,omitempty"`
	PoliceStation         string       `json:"policeStation,omitempty"`
	Branch                string       `json:"branch,omitempty"`
	FIRDate               string       `json:"firDate,omitempty"`
	InvestigatingOfficers []Officer    `json:"investigatingOfficers"`
	Respondents           []Respondent `json:"respondents"`
	Petitioner            Petitioner   `json:"petitioner"`
	Status                string       `json:"status,omitempty"`
	CreatedAt             string       `json:"createdAt,omitempty"`
	UpdatedAt             string       `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no slices with f.
func (f FIR) Clone() FIR {
	f.InvestigatingOfficers = append([]Officer(nil), f.InvestigatingOfficers...)
	f.Respondents = append([]Respondent(nil), f.Respondents...)
	return f
}

// Particulars returns the writable part of the record. Status is derived by the
// server from decision details and is never sent.
func (f FIR) Particulars() FIR {
	f = f.Clone()
	f.Status = ""
	f.CreatedAt = ""
	f.UpdatedAt = ""
	return f
}

type HearingDetails struct {
	DateOfHearing string `json:"dateOfHearing,omitempty"`
	JudgeName     string `json:"judgeName,omitempty"`
	CourtNumber   string `json:"courtNumber,omitempty"`
}

type DecisionDetails struct {
	WritStatus     string `json:"writStatus,omitempty"`
	DateOfDecision string `json:"dateOfDecision,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
	Attachment     string `json:"attachment,omitempty"`
}

type Proceeding struct {
	ID                string                  `json:"id,omitempty"`
	FIR               string                  `json:"fir"`
	Sequence          int                     `json:"sequence,omitempty"`
	Type              ProceedingType          `json:"type"`
	Draft             bool                    `json:"draft"`
	Hearing           HearingDetails          `json:"hearingDetails"`
	NoticeOfMotion    Entries[NoticeOfMotion] `json:"noticeOfMotion,omitempty"`
	ReplyTracking     Entries[ReplyTracking]  `json:"replyTracking,omitempty"`
	ArgumentDetails   Entries[Argument]       `json:"argumentDetails,omitempty"`
	AnyOtherDetails   Entries[AnyOther]       `json:"anyOtherDetails,omitempty"`
	Decision          *DecisionDetails        `json:"decisionDetails,omitempty"`
	OrderOfProceeding string                  `json:"orderOfProceeding,omitempty"`
	CreatedAt         string                  `json:"createdAt,omitempty"`
	UpdatedAt         string                  `json:"updatedAt,omitempty"`
}

type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	District string `json:"district,omitempty"`
}

type Dashboard struct {
	TotalCases        int              `json:"totalCases"`
	ByWritType        map[WritType]int `json:"byWritType"`
	ByStatus          map[string]int   `json:"byStatus"`
	PendingDrafts     int              `json:"pendingDrafts"`
	WithoutProceeding int              `json:"withoutProceeding"`
	TotalProceedings  int              `json:"totalProceedings"`
}
