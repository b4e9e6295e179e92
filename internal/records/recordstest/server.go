// Package recordstest runs an in-memory stand-in for the case-record service
// so clients, the cached repo and the workflows can be tested end to end.
package recordstest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"writline/internal/domain"
)

// Upload is a file part received by the fake.
type Upload struct {
	Part        string
	Filename    string
	ContentType string
	Size        int
}

// Write captures one proceeding create/update as received.
type Write struct {
	Method        string
	ProceedingID  string
	Fields        map[string]string
	Uploads       []Upload
	FilesToDelete []string
}

type failure struct {
	status   int
	message  string
	envelope bool
}

type Server struct {
	*httptest.Server
	// Token, when set, is required as the bearer token.
	Token string
	// Envelope wraps every successful response in {status,data}.
	Envelope bool

	mu          sync.Mutex
	firs        map[string]domain.FIR
	proceedings map[string]domain.Proceeding
	branches    []domain.Branch
	seq         int
	requests    []string
	writes      []Write
	deleted     []string
	failures    []failure
}

func New() *Server {
	s := &Server{
		firs:        map[string]domain.FIR{},
		proceedings: map[string]domain.Proceeding{},
		branches:    []domain.Branch{{ID: "b-1", Name: "Writ Cell", District: "Central"}},
	}
	r := chi.NewRouter()
	r.Use(s.record, s.auth, s.inject)
	r.Get("/fir", s.listFIRs)
	r.Post("/fir", s.createFIR)
	r.Get("/fir/{id}", s.getFIR)
	r.Put("/fir/{id}", s.updateFIR)
	r.Get("/proceedings", s.listProceedings)
	r.Post("/proceedings", s.saveProceeding)
	r.Put("/proceedings/{id}", s.saveProceeding)
	r.Get("/proceedings/fir/{id}", s.proceedingsByFIR)
	r.Get("/proceedings/fir/{id}/draft", s.draftByFIR)
	r.Get("/branches", s.listBranches)
	s.Server = httptest.NewServer(r)
	return s
}

// FailNext makes the next request fail with status. With envelope set the
// failure is reported inside an HTTP 200 envelope.
func (s *Server) FailNext(status int, message string, envelope bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, message: message, envelope: envelope})
}

// SeedFIR stores fir as if it had been created earlier and returns its id.
func (s *Server) SeedFIR(fir domain.FIR) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fir.ID == "" {
		s.seq++
		fir.ID = fmt.Sprintf("fir-%d", s.seq)
	}
	s.firs[fir.ID] = fir
	return fir.ID
}

// SeedProceeding stores p, assigning id and sequence when missing.
func (s *Server) SeedProceeding(p domain.Proceeding) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		s.seq++
		p.ID = fmt.Sprintf("proc-%d", s.seq)
	}
	if p.Sequence == 0 {
		p.Sequence = s.nextSequence(p.FIR)
	}
	s.proceedings[p.ID] = p
	return p.ID
}

func (s *Server) FIR(id string) (domain.FIR, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.firs[id]
	return f, ok
}

func (s *Server) Proceeding(id string) (domain.Proceeding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proceedings[id]
	return p, ok
}

// Requests returns "METHOD /path" for every request seen.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests matched "METHOD /path".
func (s *Server) Count(methodPath string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == methodPath {
			n++
		}
	}
	return n
}

func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

func (s *Server) LastWrite() (Write, bool) {
	w := s.Writes()
	if len(w) == 0 {
		return Write{}, false
	}
	return w[len(w)-1], true
}

// Deleted lists every filename the client asked to delete.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeRaw(w, http.StatusUnauthorized, map[string]any{"message": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var f *failure
		if len(s.failures) > 0 {
			f = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()
		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if f.envelope {
			writeRaw(w, http.StatusOK, map[string]any{"status": f.status, "message": f.message})
			return
		}
		writeRaw(w, f.status, map[string]any{"message": f.message})
	})
}

func writeRaw(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	if s.Envelope {
		writeRaw(w, http.StatusOK, map[string]any{"status": http.StatusOK, "message": "ok", "data": v})
		return
	}
	writeRaw(w, status, v)
}

func (s *Server) listFIRs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]domain.FIR, 0, len(s.firs))
	for _, f := range s.firs {
		out = append(out, f)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.reply(w, http.StatusOK, out)
}

func (s *Server) getFIR(w http.ResponseWriter, r *http.Request) {
	f, ok := s.FIR(chi.URLParam(r, "id"))
	if !ok {
		writeRaw(w, http.StatusNotFound, map[string]any{"message": "fir not found"})
		return
	}
	s.reply(w, http.StatusOK, f)
}

func (s *Server) createFIR(w http.ResponseWriter, r *http.Request) {
	var f domain.FIR
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	if len(f.Respondents) == 0 || len(f.InvestigatingOfficers) == 0 {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": "respondents and officers are required"})
		return
	}
	f.ID = ""
	f.Status = ""
	id := s.SeedFIR(f)
	f, _ = s.FIR(id)
	s.reply(w, http.StatusCreated, f)
}

func (s *Server) updateFIR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, ok := s.FIR(id)
	if !ok {
		writeRaw(w, http.StatusNotFound, map[string]any{"message": "fir not found"})
		return
	}
	var f domain.FIR
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	f.ID = id
	f.Status = existing.Status
	s.SeedFIR(f)
	s.reply(w, http.StatusOK, f)
}

func (s *Server) listProceedings(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, s.filterProceedings(func(domain.Proceeding) bool { return true }))
}

func (s *Server) proceedingsByFIR(w http.ResponseWriter, r *http.Request) {
	fir := chi.URLParam(r, "id")
	s.reply(w, http.StatusOK, s.filterProceedings(func(p domain.Proceeding) bool { return p.FIR == fir }))
}

func (s *Server) draftByFIR(w http.ResponseWriter, r *http.Request) {
	fir := chi.URLParam(r, "id")
	drafts := s.filterProceedings(func(p domain.Proceeding) bool { return p.FIR == fir && p.Draft })
	if len(drafts) == 0 {
		s.reply(w, http.StatusOK, nil)
		return
	}
	s.reply(w, http.StatusOK, drafts[0])
}

func (s *Server) listBranches(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]domain.Branch(nil), s.branches...)
	s.mu.Unlock()
	s.reply(w, http.StatusOK, out)
}

func (s *Server) filterProceedings(keep func(domain.Proceeding) bool) []domain.Proceeding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Proceeding{}
	for _, p := range s.proceedings {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FIR != out[j].FIR {
			return out[i].FIR < out[j].FIR
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

func (s *Server) nextSequence(fir string) int {
	n := 0
	for _, p := range s.proceedings {
		if p.FIR == fir && p.Sequence > n {
			n = p.Sequence
		}
	}
	return n + 1
}

func (s *Server) saveProceeding(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	rec := Write{Method: r.Method, ProceedingID: chi.URLParam(r, "id"), Fields: map[string]string{}}
	raw := map[string]json.RawMessage{}
	for name, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		rec.Fields[name] = values[0]
		raw[name] = json.RawMessage(values[0])
	}
	if v, ok := rec.Fields["filesToDelete"]; ok {
		if err := json.Unmarshal([]byte(v), &rec.FilesToDelete); err != nil {
			writeRaw(w, http.StatusBadRequest, map[string]any{"message": "filesToDelete: " + err.Error()})
			return
		}
		delete(raw, "filesToDelete")
	}
	b, _ := json.Marshal(raw)
	var p domain.Proceeding
	if err := json.Unmarshal(b, &p); err != nil {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	for part, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			size := 0
			if f, err := fh.Open(); err == nil {
				data, _ := io.ReadAll(f)
				size = len(data)
				f.Close()
			}
			rec.Uploads = append(rec.Uploads, Upload{Part: part, Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: size})
		}
	}
	sort.Slice(rec.Uploads, func(i, j int) bool { return rec.Uploads[i].Part < rec.Uploads[j].Part })

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.firs[p.FIR]; !ok {
		writeRaw(w, http.StatusBadRequest, map[string]any{"message": "unknown fir"})
		return
	}
	status := http.StatusCreated
	if rec.ProceedingID != "" {
		existing, ok := s.proceedings[rec.ProceedingID]
		if !ok {
			writeRaw(w, http.StatusNotFound, map[string]any{"message": "proceeding not found"})
			return
		}
		p.ID = existing.ID
		p.Sequence = existing.Sequence
		if p.OrderOfProceeding == "" && !contains(rec.FilesToDelete, existing.OrderOfProceeding) {
			p.OrderOfProceeding = existing.OrderOfProceeding
		}
		status = http.StatusOK
	} else {
		s.seq++
		p.ID = fmt.Sprintf("proc-%d", s.seq)
		p.Sequence = s.nextSequence(p.FIR)
	}
	for _, u := range rec.Uploads {
		applyUpload(&p, u)
	}
	if p.Decision != nil && p.Decision.WritStatus != "" && !p.Draft {
		f := s.firs[p.FIR]
		f.Status = p.Decision.WritStatus
		s.firs[p.FIR] = f
	}
	s.proceedings[p.ID] = p
	s.writes = append(s.writes, rec)
	s.deleted = append(s.deleted, rec.FilesToDelete...)
	if s.Envelope {
		writeRaw(w, http.StatusOK, map[string]any{"status": http.StatusOK, "data": p})
		return
	}
	writeRaw(w, status, p)
}

func applyUpload(p *domain.Proceeding, u Upload) {
	switch {
	case u.Part == "attachments_decisionDetails":
		if p.Decision == nil {
			p.Decision = &domain.DecisionDetails{}
		}
		p.Decision.Attachment = u.Filename
		return
	case u.Part == "orderOfProceeding":
		p.OrderOfProceeding = u.Filename
		return
	}
	prefix := "attachments_" + p.Type.Channel() + "_"
	if !strings.HasPrefix(u.Part, prefix) {
		return
	}
	var i int
	if _, err := fmt.Sscanf(strings.TrimPrefix(u.Part, prefix), "%d", &i); err != nil {
		return
	}
	switch p.Type {
	case domain.NoticeOfMotionType:
		if i < len(p.NoticeOfMotion) {
			p.NoticeOfMotion[i].Attachment = u.Filename
		}
	case domain.ToFileReplyType:
		if i < len(p.ReplyTracking) {
			p.ReplyTracking[i].Attachment = u.Filename
		}
	case domain.ArgumentType:
		if i < len(p.ArgumentDetails) {
			p.ArgumentDetails[i].Attachment = u.Filename
		}
	case domain.AnyOtherType:
		if i < len(p.AnyOtherDetails) {
			p.AnyOtherDetails[i].Attachment = u.Filename
		}
	}
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
