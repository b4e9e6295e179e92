package engine_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"writline/internal/apperr"
	"writline/internal/attachments"
	"writline/internal/cache"
	"writline/internal/db"
	"writline/internal/domain"
	"writline/internal/engine"
	"writline/internal/events"
	"writline/internal/migrate"
	"writline/internal/normalize"
	"writline/internal/records"
	"writline/internal/records/recordstest"
	"writline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Srv     *recordstest.Server
	Journal events.Writer
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, wrap func(repo.Service) repo.Service) testEnv {
	t.Helper()
	srv := recordstest.New()
	t.Cleanup(srv.Close)
	conn, err := db.Open(context.Background(), db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var svc repo.Service = records.New(srv.URL, "")
	if wrap != nil {
		svc = wrap(svc)
	}
	journal := events.Writer{DB: conn}
	eng := engine.New(repo.New(svc, cache.New(cache.DefaultTTL, nil), nil), journal, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Srv: srv, Journal: journal, Ctx: ctx}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func pdf(name string) attachments.File {
	return attachments.File{Name: name, ContentType: "application/pdf", Data: []byte("%PDF-" + name)}
}

func hearing() domain.HearingDetails {
	return domain.HearingDetails{DateOfHearing: "2024-02-01", JudgeName: "Justice K", CourtNumber: "12"}
}

// openStep1 fills a valid Step 1 on a new filing.
func openStep1(t *testing.T, env testEnv, w domain.WritType) *engine.Filing {
	t.Helper()
	f := env.Engine.NewFiling()
	must(t, f.Open())
	must(t, f.SetParticulars(domain.FIR{FIRNumber: "12/2024", FIRDate: "2024-01-05", PoliceStation: "Central"}))
	must(t, f.SetWritType(w))
	must(t, f.SetOfficer(0, domain.Officer{Name: "O1", Rank: "SI", Posting: "Station A", Contact: "9999999999"}))
	must(t, f.SetRespondent(0, domain.Respondent{Name: "R1"}))
	return f
}

func seedCase(env testEnv, w domain.WritType) string {
	return env.Srv.SeedFIR(domain.FIR{
		WritType:              w,
		FIRDate:               "2024-01-05",
		InvestigatingOfficers: []domain.Officer{{Name: "O1", Rank: "SI", Posting: "Station A"}},
		Respondents:           []domain.Respondent{{Name: "R1"}},
	})
}

func TestFreshFiling(t *testing.T) {
	env := newTestEnv(t)
	f := openStep1(t, env, domain.WritBail)
	must(t, f.AddRespondent(domain.Respondent{Name: "   "}))
	must(t, f.SubmitStep1(env.Ctx))

	snap := f.Snapshot()
	if snap.State != engine.StateStep2Draft {
		t.Fatalf("expected STEP2_DRAFT, got %s", snap.State)
	}
	if snap.FIRID == "" {
		t.Fatalf("expected case id")
	}
	stored, ok := env.Srv.FIR(snap.FIRID)
	if !ok {
		t.Fatalf("case not persisted")
	}
	if len(stored.Respondents) != 1 || stored.Respondents[0].Name != "R1" {
		t.Fatalf("blank respondent should be dropped: %+v", stored.Respondents)
	}
	if stored.InvestigatingOfficers[0].Contact != "9999999999" {
		t.Fatalf("officer contact lost: %+v", stored.InvestigatingOfficers[0])
	}
	if snap.Step2 == nil || snap.Step2.Hearing.DateOfHearing != "2024-01-05" {
		t.Fatalf("expected hearing date to default to the filing date, got %+v", snap.Step2)
	}
	if snap.Step2.Type != domain.NoticeOfMotionType || snap.Step2.Entries.Len() != 1 {
		t.Fatalf("expected one empty NOTICE_OF_MOTION entry, got %+v", snap.Step2.Entries)
	}
}

func TestStep1ValidationSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	f := openStep1(t, env, domain.WritBail)
	must(t, f.SetRespondent(0, domain.Respondent{Name: "  "}))
	if err := f.SubmitStep1(env.Ctx); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	must(t, f.SetRespondent(0, domain.Respondent{Name: "R1"}))
	must(t, f.SetOfficer(0, domain.Officer{Name: "O1", Rank: " ", Posting: "A"}))
	err := f.SubmitStep1(env.Ctx)
	if !apperr.IsValidation(err) || !strings.Contains(err.Error(), "rank") {
		t.Fatalf("expected rank validation error, got %v", err)
	}
	if err := f.RemoveOfficer(0); !apperr.IsValidation(err) {
		t.Fatalf("removing the only officer should fail, got %v", err)
	}
	if n := len(env.Srv.Requests()); n != 0 {
		t.Fatalf("validation must not dispatch, got %d requests", n)
	}
	if s := f.Snapshot().State; s != engine.StateStep1 {
		t.Fatalf("state changed to %s", s)
	}
}

func TestWritTypeLockedByArgument(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritQuashing)
	env.Srv.SeedProceeding(domain.Proceeding{
		FIR: id, Type: domain.ArgumentType, Hearing: hearing(),
		ArgumentDetails: domain.Entries[domain.Argument]{{ArgumentBy: "AG"}},
	})
	f := env.Engine.NewFiling()
	must(t, f.EditCompleted(env.Ctx, id))
	before := len(env.Srv.Requests())

	must(t, f.SetWritType(domain.WritBail))
	if err := f.SubmitStep1(env.Ctx); !apperr.IsValidation(err) {
		t.Fatalf("expected writ type lock, got %v", err)
	}
	if n := len(env.Srv.Requests()); n != before {
		t.Fatalf("lock violation dispatched %d requests", n-before)
	}

	must(t, f.SetWritType(domain.WritQuashing))
	must(t, f.SubmitStep1(env.Ctx))
	if s := f.Snapshot().State; s != engine.StateStep1Confirm {
		t.Fatalf("edit mode should confirm instead of advancing, got %s", s)
	}
	if n := len(env.Srv.Requests()); n != before {
		t.Fatalf("submit in edit mode should not dispatch yet")
	}
	must(t, f.ConfirmStep1(env.Ctx))
	if s := f.Snapshot().State; s != engine.StateSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s)
	}
	if env.Srv.Count("PUT /fir/"+id) != 1 {
		t.Fatalf("expected one case update, got %v", env.Srv.Requests())
	}
}

func TestEditCompletedRequiresFiledProceeding(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	f := env.Engine.NewFiling()
	if err := f.EditCompleted(env.Ctx, id); !apperr.IsState(err) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func hasType(types []domain.ProceedingType, want domain.ProceedingType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestArgumentGating(t *testing.T) {
	env := newTestEnv(t)
	f := openStep1(t, env, domain.WritBail)
	must(t, f.SubmitStep1(env.Ctx))
	if hasType(f.AvailableTypes(), domain.ArgumentType) {
		t.Fatalf("ARGUMENT offered for BAIL")
	}
	if err := f.SelectType(domain.ArgumentType); !apperr.IsValidation(err) {
		t.Fatalf("expected ARGUMENT to be rejected, got %v", err)
	}

	must(t, f.BackToStep1())
	must(t, f.SetWritType(domain.WritQuashing))
	must(t, f.SubmitStep1(env.Ctx))
	if !hasType(f.AvailableTypes(), domain.ArgumentType) {
		t.Fatalf("ARGUMENT not offered for QUASHING")
	}
	must(t, f.SelectType(domain.ArgumentType))

	must(t, f.BackToStep1())
	must(t, f.SetWritType(domain.WritDirection))
	if got := f.Snapshot().Step2.Type; got != domain.NoticeOfMotionType {
		t.Fatalf("expected reset to NOTICE_OF_MOTION, got %s", got)
	}
	if env.Srv.Count("POST /fir") != 1 || env.Srv.Count("PUT /fir/"+f.Snapshot().FIRID) != 1 {
		t.Fatalf("expected create then update, got %v", env.Srv.Requests())
	}
}

func TestResumeDraft(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	draftID := env.Srv.SeedProceeding(domain.Proceeding{
		FIR: id, Type: domain.AnyOtherType, Draft: true,
		AnyOtherDetails: domain.Entries[domain.AnyOther]{{Details: "first"}, {Details: "second"}},
	})
	f := env.Engine.NewFiling()
	must(t, f.Resume(env.Ctx, id))
	snap := f.Snapshot()
	if snap.State != engine.StateStep2Draft || snap.DraftID != draftID || snap.ResumingIncomplete {
		t.Fatalf("unexpected resume snapshot: %+v", snap)
	}
	if snap.Step2.Type != domain.AnyOtherType || snap.Step2.Entries.Len() != 2 {
		t.Fatalf("draft entries not loaded: %+v", snap.Step2.Entries)
	}

	if _, err := f.SaveDraft(env.Ctx); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if env.Srv.Count("PUT /proceedings/"+draftID) != 1 {
		t.Fatalf("expected draft update, got %v", env.Srv.Requests())
	}
	snap = f.Snapshot()
	if !snap.Closed || snap.State != engine.StateStep2Draft || snap.FIRID != id {
		t.Fatalf("save and close should keep the case id: %+v", snap)
	}
	if err := f.AddEntry(); !errors.Is(err, engine.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
	stored, _ := env.Srv.Proceeding(draftID)
	if !stored.Draft {
		t.Fatalf("draft flag lost")
	}
}

func TestResumeIncomplete(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	f := env.Engine.NewFiling()
	must(t, f.Resume(env.Ctx, id))
	snap := f.Snapshot()
	if !snap.ResumingIncomplete || snap.DraftID != "" {
		t.Fatalf("expected incomplete resume: %+v", snap)
	}
	if snap.Step2.Hearing.DateOfHearing != "2024-01-05" {
		t.Fatalf("expected filing date as hearing date, got %q", snap.Step2.Hearing.DateOfHearing)
	}
}

func TestResumeRefusesFiledCase(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	env.Srv.SeedProceeding(domain.Proceeding{FIR: id, Type: domain.AnyOtherType, Hearing: hearing(),
		AnyOtherDetails: domain.Entries[domain.AnyOther]{{Details: "x"}}})
	if err := env.Engine.NewFiling().Resume(env.Ctx, id); !apperr.IsState(err) {
		t.Fatalf("expected state error, got %v", err)
	}
}

// assertCachedParties reads case id through the repo and checks it still
// carries the server's officer and respondent.
func assertCachedParties(t *testing.T, env testEnv, id string) {
	t.Helper()
	stored, _ := env.Srv.FIR(id)
	cached, err := env.Engine.Repo.FIR(env.Ctx, id)
	if err != nil {
		t.Fatalf("read case: %v", err)
	}
	if cached.InvestigatingOfficers[0] != stored.InvestigatingOfficers[0] || cached.Respondents[0] != stored.Respondents[0] {
		t.Fatalf("unsaved edits reached the cache: cached %+v / %+v, server %+v / %+v",
			cached.InvestigatingOfficers[0], cached.Respondents[0], stored.InvestigatingOfficers[0], stored.Respondents[0])
	}
}

func TestCancelledEditLeavesCacheIntact(t *testing.T) {
	env := newTestEnv(t)
	id, _ := seedFiledMotion(env, domain.WritBail)
	f := env.Engine.NewFiling()
	must(t, f.EditCompleted(env.Ctx, id))
	must(t, f.SetOfficer(0, domain.Officer{Name: "UNSAVED", Rank: "SI", Posting: "X"}))
	must(t, f.SetRespondent(0, domain.Respondent{Name: "UNSAVED-R"}))
	f.Cancel()
	assertCachedParties(t, env, id)

	g := env.Engine.NewFiling()
	must(t, g.EditCompleted(env.Ctx, id))
	must(t, g.SetOfficer(0, domain.Officer{Name: "UNSAVED", Rank: " ", Posting: "X"}))
	if err := g.SubmitStep1(env.Ctx); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assertCachedParties(t, env, id)
	if snap := g.Snapshot(); snap.Case.InvestigatingOfficers[0].Name != "UNSAVED" {
		t.Fatalf("session lost its own edit: %+v", snap.Case.InvestigatingOfficers)
	}
}

func TestResumedStep1EditsStayLocal(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	f := env.Engine.NewFiling()
	must(t, f.Resume(env.Ctx, id))
	must(t, f.BackToStep1())
	must(t, f.SetOfficer(0, domain.Officer{Name: "UNSAVED", Rank: "SI", Posting: "X"}))
	must(t, f.SetRespondent(0, domain.Respondent{Name: "UNSAVED-R"}))
	assertCachedParties(t, env, id)
	f.Cancel()
	assertCachedParties(t, env, id)
}

func readyForFinal(t *testing.T, env testEnv) *engine.Filing {
	t.Helper()
	f := openStep1(t, env, domain.WritBail)
	must(t, f.SubmitStep1(env.Ctx))
	must(t, f.SelectType(domain.AnyOtherType))
	must(t, f.SetHearing(hearing()))
	must(t, f.EditEntries(func(e *normalize.Editable) { e.AnyOther[0].Details = "appeared" }))
	must(t, f.SetDecision(&domain.DecisionDetails{WritStatus: "ALLOWED", DateOfDecision: "2024-02-01"}))
	must(t, f.AttachDecision(pdf("decision.pdf")))
	return f
}

func TestFinalSubmit(t *testing.T) {
	env := newTestEnv(t)
	f := readyForFinal(t, env)
	must(t, f.RequestFinalSubmit())
	if s := f.Snapshot().State; s != engine.StateStep2Confirm {
		t.Fatalf("expected STEP2_FINAL_CONFIRM, got %s", s)
	}
	must(t, f.CancelFinalSubmit())
	must(t, f.RequestFinalSubmit())
	saved, err := f.ConfirmFinalSubmit(env.Ctx)
	if err != nil {
		t.Fatalf("final submit: %v", err)
	}
	if saved.Draft || saved.Decision == nil || saved.Decision.Attachment != "decision.pdf" {
		t.Fatalf("unexpected saved proceeding: %+v", saved)
	}
	snap := f.Snapshot()
	if snap.State != engine.StateSubmitted || snap.Step2 != nil || snap.DraftID != "" {
		t.Fatalf("session not reset: %+v", snap)
	}
	stored, _ := env.Srv.FIR(snap.FIRID)
	if stored.Status != "ALLOWED" {
		t.Fatalf("expected derived status, got %q", stored.Status)
	}

	evs, err := env.Journal.Tail(env.Ctx, 10, events.Filter{SessionID: snap.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Type != "proceeding.saved" || evs[1].Type != "case.created" {
		t.Fatalf("unexpected journal: %+v", evs)
	}
}

func TestFinalSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	f := readyForFinal(t, env)
	h := hearing()
	h.JudgeName = ""
	must(t, f.SetHearing(h))
	if err := f.RequestFinalSubmit(); !apperr.IsValidation(err) {
		t.Fatalf("expected hearing validation, got %v", err)
	}
	if env.Srv.Count("POST /proceedings") != 0 {
		t.Fatalf("validation dispatched a request")
	}
	if _, err := f.SaveDraft(env.Ctx); err != nil {
		t.Fatalf("drafts do not need hearing details: %v", err)
	}
}

func TestTransportFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	f := readyForFinal(t, env)
	must(t, f.RequestFinalSubmit())
	env.Srv.FailNext(http.StatusInternalServerError, "db down", false)
	_, err := f.ConfirmFinalSubmit(env.Ctx)
	if !apperr.IsTransport(err) || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected transport error with server message, got %v", err)
	}
	snap := f.Snapshot()
	if snap.State != engine.StateStep2Confirm || snap.Closed {
		t.Fatalf("expected rollback to STEP2_FINAL_CONFIRM, got %+v", snap)
	}
	if snap.Step2.Entries.AnyOther[0].Details != "appeared" || snap.Step2.Decision == nil {
		t.Fatalf("inputs lost on failure: %+v", snap.Step2)
	}
	if _, err := f.ConfirmFinalSubmit(env.Ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	w, _ := env.Srv.LastWrite()
	if len(w.Uploads) != 1 || w.Uploads[0].Part != attachments.DecisionPart {
		t.Fatalf("decision file not resent on retry: %+v", w.Uploads)
	}
}

func TestAuthFailurePropagates(t *testing.T) {
	env := newTestEnv(t)
	f := openStep1(t, env, domain.WritBail)
	env.Srv.FailNext(http.StatusUnauthorized, "expired", true)
	if err := f.SubmitStep1(env.Ctx); !apperr.IsAuth(err) {
		t.Fatalf("expected auth error from envelope status, got %v", err)
	}
	if s := f.Snapshot().State; s != engine.StateStep1 {
		t.Fatalf("expected STEP1 after failure, got %s", s)
	}
}

func TestRemoveEntryReindexesUploads(t *testing.T) {
	env := newTestEnv(t)
	f := openStep1(t, env, domain.WritBail)
	must(t, f.SubmitStep1(env.Ctx))
	must(t, f.SelectType(domain.AnyOtherType))
	must(t, f.AddEntry())
	must(t, f.AddEntry())
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		must(t, f.Attach(i, pdf(name)))
	}
	if err := f.Attach(0, attachments.File{Name: "notes.txt", ContentType: "text/plain"}); !apperr.IsValidation(err) {
		t.Fatalf("expected type rejection, got %v", err)
	}
	must(t, f.RemoveEntry(1))
	if got := f.Snapshot().Step2.Pending; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected pending {0,1}, got %v", got)
	}
	if _, err := f.SaveDraft(env.Ctx); err != nil {
		t.Fatal(err)
	}
	w, _ := env.Srv.LastWrite()
	if len(w.Uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %+v", w.Uploads)
	}
	if w.Uploads[0].Part != "attachments_anyOtherDetails_0" || w.Uploads[0].Filename != "a.pdf" {
		t.Fatalf("unexpected first upload %+v", w.Uploads[0])
	}
	if w.Uploads[1].Part != "attachments_anyOtherDetails_1" || w.Uploads[1].Filename != "c.pdf" {
		t.Fatalf("unexpected second upload %+v", w.Uploads[1])
	}
}

func seedFiledMotion(env testEnv, w domain.WritType) (string, string) {
	id := seedCase(env, w)
	pid := env.Srv.SeedProceeding(domain.Proceeding{
		FIR: id, Type: domain.NoticeOfMotionType, Hearing: hearing(),
		NoticeOfMotion: domain.Entries[domain.NoticeOfMotion]{{
			AttendanceMode: domain.ByPerson, AppearingAG: "AG", OfficerName: "Legacy IO",
			Details: "heard", Attachment: "a.pdf",
		}},
		Decision:          &domain.DecisionDetails{Remarks: "pending", Attachment: "d.pdf"},
		OrderOfProceeding: "o.pdf",
	})
	return id, pid
}

func TestEditTypeSwitchDestructiveReset(t *testing.T) {
	env := newTestEnv(t)
	id, pid := seedFiledMotion(env, domain.WritQuashing)
	pe, err := env.Engine.EditProceeding(env.Ctx, id, pid)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := pe.Snapshot()
	if snap.State != engine.StateReady || snap.Form.Entries.Motion[0].Officer.Name != "Legacy IO" {
		t.Fatalf("unexpected load: %+v", snap)
	}

	must(t, pe.ChangeType(domain.ArgumentType))
	snap = pe.Snapshot()
	if snap.State != engine.StateTypeChanged {
		t.Fatalf("expected TYPE_CHANGED, got %s", snap.State)
	}
	want := map[string]bool{"a.pdf": true, "d.pdf": true, "o.pdf": true}
	if len(snap.Form.Deletions) != len(want) {
		t.Fatalf("unexpected deletions %v", snap.Form.Deletions)
	}
	for _, name := range snap.Form.Deletions {
		if !want[name] {
			t.Fatalf("unexpected deletion %s", name)
		}
	}
	if snap.Form.Entries.Type != domain.ArgumentType || snap.Form.Entries.Len() != 1 || snap.Form.Entries.Argument[0] != (domain.Argument{}) {
		t.Fatalf("expected one empty ARGUMENT entry, got %+v", snap.Form.Entries)
	}

	if _, err := pe.Confirm(env.Ctx); !apperr.IsState(err) {
		t.Fatalf("confirm without request must fail, got %v", err)
	}
	if err := pe.RequestSave(); !apperr.IsValidation(err) {
		t.Fatalf("expected argumentBy validation, got %v", err)
	}
	must(t, pe.EditEntries(func(e *normalize.Editable) { e.Argument[0].ArgumentBy = "AG" }))
	must(t, pe.RequestSave())
	if pe.Warning() == "" {
		t.Fatalf("expected irreversibility warning")
	}
	if err := pe.AddEntry(); !apperr.IsState(err) {
		t.Fatalf("edits must be blocked at CONFIRM, got %v", err)
	}
	if _, err := pe.Confirm(env.Ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s := pe.Snapshot().State; s != engine.StateDone {
		t.Fatalf("expected DONE, got %s", s)
	}
	w, _ := env.Srv.LastWrite()
	if len(w.FilesToDelete) != 3 || w.FilesToDelete[0] != "a.pdf" {
		t.Fatalf("unexpected filesToDelete %v", w.FilesToDelete)
	}
	stored, _ := env.Srv.Proceeding(pid)
	if stored.Type != domain.ArgumentType || len(stored.NoticeOfMotion) != 0 || stored.OrderOfProceeding != "" {
		t.Fatalf("unexpected stored proceeding %+v", stored)
	}
}

func TestEditConfirmFailureKeepsEdits(t *testing.T) {
	env := newTestEnv(t)
	id, pid := seedFiledMotion(env, domain.WritQuashing)
	pe, err := env.Engine.EditProceeding(env.Ctx, id, pid)
	if err != nil {
		t.Fatal(err)
	}
	must(t, pe.ChangeType(domain.AnyOtherType))
	must(t, pe.EditEntries(func(e *normalize.Editable) { e.AnyOther[0].Details = "new" }))
	must(t, pe.RequestSave())
	env.Srv.FailNext(http.StatusBadGateway, "", false)
	if _, err := pe.Confirm(env.Ctx); !apperr.IsTransport(err) || !strings.Contains(err.Error(), apperr.GenericTransportMessage) {
		t.Fatalf("expected generic transport error, got %v", err)
	}
	snap := pe.Snapshot()
	if snap.State != engine.StateTypeChanged || snap.Form.Entries.AnyOther[0].Details != "new" {
		t.Fatalf("expected TYPE_CHANGED with edits kept: %+v", snap)
	}
	if pe.Warning() == "" || len(snap.Form.Deletions) != 3 {
		t.Fatalf("type change lost on failure: %+v", snap.Form.Deletions)
	}
	must(t, pe.RequestSave())
	if _, err := pe.Confirm(env.Ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestEditPrecondition(t *testing.T) {
	env := newTestEnv(t)
	id := seedCase(env, domain.WritBail)
	pid := env.Srv.SeedProceeding(domain.Proceeding{FIR: id, Type: domain.AnyOtherType, Draft: true})
	if _, err := env.Engine.EditProceeding(env.Ctx, id, pid); !apperr.IsState(err) {
		t.Fatalf("expected state error for in-progress case, got %v", err)
	}
	other, _ := seedFiledMotion(env, domain.WritBail)
	if _, err := env.Engine.EditProceeding(env.Ctx, other, pid); !apperr.IsState(err) || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found for foreign proceeding, got %v", err)
	}
}

func TestEditArgumentNotAllowedForBail(t *testing.T) {
	env := newTestEnv(t)
	id, pid := seedFiledMotion(env, domain.WritBail)
	pe, err := env.Engine.EditProceeding(env.Ctx, id, pid)
	if err != nil {
		t.Fatal(err)
	}
	if err := pe.ChangeType(domain.ArgumentType); !apperr.IsValidation(err) {
		t.Fatalf("expected ARGUMENT rejection, got %v", err)
	}
	if len(pe.Snapshot().Form.Deletions) != 0 {
		t.Fatalf("rejected type change must not touch the ledger")
	}
}

// gatedService blocks CreateFIR until release is closed.
type gatedService struct {
	repo.Service
	started chan struct{}
	release chan struct{}
}

func (g gatedService) CreateFIR(ctx context.Context, fir domain.FIR) (domain.FIR, error) {
	close(g.started)
	<-g.release
	return g.Service.CreateFIR(ctx, fir)
}

func newGatedEnv(t *testing.T) (testEnv, gatedService) {
	g := gatedService{started: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWith(t, func(svc repo.Service) repo.Service {
		g.Service = svc
		return g
	})
	return env, g
}

func TestSecondRequestRejectedWhileInFlight(t *testing.T) {
	env, g := newGatedEnv(t)
	f := openStep1(t, env, domain.WritBail)
	done := make(chan error, 1)
	go func() { done <- f.SubmitStep1(env.Ctx) }()
	<-g.started

	err := f.SubmitStep1(env.Ctx)
	if !apperr.IsState(err) || !strings.Contains(err.Error(), "in flight") {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	if err := f.AddOfficer(domain.Officer{Name: "O2"}); !apperr.IsState(err) {
		t.Fatalf("expected mutation rejection, got %v", err)
	}
	if !f.Snapshot().InFlight {
		t.Fatalf("snapshot should report the request in flight")
	}
	close(g.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if env.Srv.Count("POST /fir") != 1 {
		t.Fatalf("expected exactly one create, got %v", env.Srv.Requests())
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	env, g := newGatedEnv(t)
	f := openStep1(t, env, domain.WritBail)
	ctx, cancel := context.WithCancel(env.Ctx)
	done := make(chan error, 1)
	go func() { done <- f.SubmitStep1(ctx) }()
	<-g.started
	cancel()
	f.Cancel()
	close(g.release)

	if err := <-done; !errors.Is(err, engine.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	snap := f.Snapshot()
	if snap.State != engine.StateCancelled || snap.FIRID != "" {
		t.Fatalf("stale response applied: %+v", snap)
	}
	if env.Srv.Count("POST /fir") != 1 {
		t.Fatalf("the write must still reach the server")
	}
	evs, err := env.Journal.Tail(env.Ctx, 10, events.Filter{Type: "case.created"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Outcome != "discarded" {
		t.Fatalf("expected discarded journal entry, got %+v", evs)
	}
}
