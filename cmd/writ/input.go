package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"writline/internal/attachments"
	"writline/internal/domain"
	"writline/internal/normalize"
)

// caseDoc is the input document of case file and case edit.
type caseDoc struct {
	Case       domain.FIR     `json:"case"`
	Proceeding *proceedingDoc `json:"proceeding,omitempty"`
}

// proceedingDoc carries a proceeding in its persisted shape plus local files
// to upload. Files maps entry index to a path.
type proceedingDoc struct {
	domain.Proceeding
	Files        map[int]string `json:"files,omitempty"`
	DecisionFile string         `json:"decisionFile,omitempty"`
	OrderFile    string         `json:"orderFile,omitempty"`
	Final        bool           `json:"final,omitempty"`
}

// decodeDoc reads a YAML or JSON document into v. YAML is converted to JSON
// first so the json tags of the domain types apply to both.
func decodeDoc(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	b, err := json.Marshal(jsonable(generic))
	if err != nil {
		return fmt.Errorf("convert %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// jsonable turns the map[any]any yaml produces for non-string keys into
// string-keyed maps.
func jsonable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonable(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonable(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = jsonable(val)
		}
		return t
	}
	return v
}

func readAttachment(path string) (attachments.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return attachments.File{}, err
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return attachments.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

// proceedingEditor is the Step 2 surface shared by engine.Filing and
// engine.ProceedingEdit.
type proceedingEditor interface {
	SetHearing(h domain.HearingDetails) error
	SetDecision(d *domain.DecisionDetails) error
	EditEntries(fn func(e *normalize.Editable)) error
	AddEntry() error
	RemoveEntry(i int) error
	Attach(i int, f attachments.File) error
	AttachDecision(f attachments.File) error
	AttachOrder(f attachments.File) error
}

// applyProceeding copies doc onto ed, whose entries currently number current
// and already have doc's type.
func applyProceeding(ed proceedingEditor, current int, doc *proceedingDoc) error {
	want, err := normalize.Load(doc.Proceeding)
	if err != nil {
		return err
	}
	for ; current < want.Len(); current++ {
		if err := ed.AddEntry(); err != nil {
			return err
		}
	}
	for ; current > want.Len(); current-- {
		if err := ed.RemoveEntry(current - 1); err != nil {
			return err
		}
	}
	if err := ed.EditEntries(func(e *normalize.Editable) { *e = want.Clone() }); err != nil {
		return err
	}
	if err := ed.SetHearing(doc.Hearing); err != nil {
		return err
	}
	if doc.Decision != nil {
		if err := ed.SetDecision(doc.Decision); err != nil {
			return err
		}
	}
	for i, path := range doc.Files {
		f, err := readAttachment(path)
		if err != nil {
			return err
		}
		if err := ed.Attach(i, f); err != nil {
			return err
		}
	}
	if doc.DecisionFile != "" {
		f, err := readAttachment(doc.DecisionFile)
		if err != nil {
			return err
		}
		if err := ed.AttachDecision(f); err != nil {
			return err
		}
	}
	if doc.OrderFile != "" {
		f, err := readAttachment(doc.OrderFile)
		if err != nil {
			return err
		}
		if err := ed.AttachOrder(f); err != nil {
			return err
		}
	}
	return nil
}

// partyEditor is the Step 1 surface used to load a caseDoc.
type partyEditor interface {
	SetParticulars(p domain.FIR) error
	SetWritType(w domain.WritType) error
	SetOfficer(i int, o domain.Officer) error
	AddOfficer(o domain.Officer) error
	RemoveOfficer(i int) error
	SetRespondent(i int, r domain.Respondent) error
	AddRespondent(r domain.Respondent) error
	RemoveRespondent(i int) error
}

// applyCase copies fir onto ed. officers and respondents are the current counts.
func applyCase(ed partyEditor, officers, respondents int, fir domain.FIR) error {
	if err := ed.SetParticulars(fir); err != nil {
		return err
	}
	if err := ed.SetWritType(fir.WritType); err != nil {
		return err
	}
	for i, o := range fir.InvestigatingOfficers {
		var err error
		if i < officers {
			err = ed.SetOfficer(i, o)
		} else {
			err = ed.AddOfficer(o)
		}
		if err != nil {
			return err
		}
	}
	for n := officers; n > len(fir.InvestigatingOfficers) && n > 1; n-- {
		if err := ed.RemoveOfficer(n - 1); err != nil {
			return err
		}
	}
	for i, r := range fir.Respondents {
		var err error
		if i < respondents {
			err = ed.SetRespondent(i, r)
		} else {
			err = ed.AddRespondent(r)
		}
		if err != nil {
			return err
		}
	}
	for n := respondents; n > len(fir.Respondents) && n > 1; n-- {
		if err := ed.RemoveRespondent(n - 1); err != nil {
			return err
		}
	}
	return nil
}
