package records_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"writline/internal/apperr"
	"writline/internal/attachments"
	"writline/internal/domain"
	"writline/internal/normalize"
	"writline/internal/records"
	"writline/internal/records/recordstest"
)

func sampleFIR() domain.FIR {
	return domain.FIR{
		WritType:              domain.WritBail,
		FIRNumber:             "12/2024",
		FIRDate:               "2024-01-05",
		InvestigatingOfficers: []domain.Officer{{Name: "O1", Rank: "SI", Posting: "Station A", Contact: "9999999999"}},
		Respondents:           []domain.Respondent{{Name: "R1"}},
		Status:                "SHOULD_NOT_BE_SENT",
	}
}

func newClient(t *testing.T) (*records.Client, *recordstest.Server) {
	t.Helper()
	srv := recordstest.New()
	t.Cleanup(srv.Close)
	return records.New(srv.URL, ""), srv
}

func TestCreateAndGetFIR(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()
	created, err := c.CreateFIR(ctx, sampleFIR())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Empty(t, created.Status, "status is never written by the client")

	got, err := c.GetFIR(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "R1", got.Respondents[0].Name)

	list, err := c.ListFIRs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, srv.Count("POST /fir"))
}

func TestEnvelopeResponses(t *testing.T) {
	c, srv := newClient(t)
	srv.Envelope = true
	id := srv.SeedFIR(sampleFIR())

	got, err := c.GetFIR(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	draft, err := c.DraftProceeding(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestAuthFailures(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()

	srv.FailNext(http.StatusUnauthorized, "expired", false)
	_, err := c.ListFIRs(ctx)
	assert.True(t, apperr.IsAuth(err))

	srv.FailNext(http.StatusForbidden, "nope", true)
	_, err = c.ListFIRs(ctx)
	require.Error(t, err)
	assert.True(t, apperr.IsAuth(err), "status field inside a 200 envelope is an auth failure")
}

func TestTransportFailureCarriesServerMessage(t *testing.T) {
	c, srv := newClient(t)
	srv.FailNext(http.StatusInternalServerError, "database down", false)
	_, err := c.ListBranches(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsTransport(err))
	assert.Contains(t, err.Error(), "database down")

	srv.FailNext(http.StatusBadGateway, "", false)
	_, err = c.ListBranches(context.Background())
	assert.Contains(t, err.Error(), apperr.GenericTransportMessage)
}

func TestBearerTokenSent(t *testing.T) {
	c, srv := newClient(t)
	srv.Token = "secret"
	_, err := c.ListBranches(context.Background())
	assert.True(t, apperr.IsAuth(err))

	c.Token = "secret"
	branches, err := c.ListBranches(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, branches)
}

func TestExpiredTokenNeverDispatched(t *testing.T) {
	c, srv := newClient(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	signed, err := token.SignedString([]byte("k"))
	require.NoError(t, err)
	c.Token = signed

	_, err = c.ListFIRs(context.Background())
	assert.True(t, apperr.IsAuth(err))
	assert.Empty(t, srv.Requests())
}

func TestProceedingMultipart(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()
	fir := srv.SeedFIR(sampleFIR())

	e := normalize.Empty(domain.ArgumentType)
	e.Argument[0].ArgumentBy = "AG"
	e.Add()
	ledger := attachments.New()
	require.NoError(t, ledger.Attach(1, attachments.File{Name: "b.pdf", ContentType: "application/pdf", Data: []byte("x")}))
	require.NoError(t, ledger.AttachDecision(attachments.File{Name: "d.png", ContentType: "image/png"}))

	created, err := c.CreateProceeding(ctx, records.ProceedingWrite{
		FIR:      fir,
		Hearing:  domain.HearingDetails{DateOfHearing: "2024-02-01", JudgeName: "J", CourtNumber: "4"},
		Payload:  normalize.Save(e),
		Decision: &domain.DecisionDetails{Remarks: "r"},
		Draft:    true,
		Files:    ledger.BuildSaveInstructions(domain.ArgumentType.Channel()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Sequence)
	assert.True(t, created.Draft)
	require.Len(t, created.ArgumentDetails, 2)
	assert.Equal(t, "b.pdf", created.ArgumentDetails[1].Attachment)
	assert.Equal(t, "d.png", created.Decision.Attachment)

	w, ok := srv.LastWrite()
	require.True(t, ok)
	assert.Equal(t, []recordstest.Upload{
		{Part: "attachments_argumentDetails_1", Filename: "b.pdf", ContentType: "application/pdf", Size: 1},
		{Part: "attachments_decisionDetails", Filename: "d.png", ContentType: "image/png", Size: 0},
	}, w.Uploads)
	var typ string
	require.NoError(t, json.Unmarshal([]byte(w.Fields["type"]), &typ))
	assert.Equal(t, "ARGUMENT", typ)
	_, hasDelete := w.Fields["filesToDelete"]
	assert.False(t, hasDelete, "create never sends filesToDelete")

	ledger.Clear()
	ledger.MarkExistingForDeletion("b.pdf")
	_, err = c.UpdateProceeding(ctx, created.ID, records.ProceedingWrite{
		FIR:     fir,
		Payload: normalize.Save(e),
		Files:   ledger.BuildSaveInstructions(domain.ArgumentType.Channel()),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf"}, srv.Deleted())
}

func TestSingleEntryPayloadSentAsObject(t *testing.T) {
	c, srv := newClient(t)
	fir := srv.SeedFIR(sampleFIR())
	e := normalize.Empty(domain.AnyOtherType)
	e.AnyOther[0].Details = "misc"
	_, err := c.CreateProceeding(context.Background(), records.ProceedingWrite{FIR: fir, Payload: normalize.Save(e)})
	require.NoError(t, err)
	w, _ := srv.LastWrite()
	assert.Equal(t, byte('{'), w.Fields["anyOtherDetails"][0])
}

func TestConcurrentRequestsLeaveClientUntouched(t *testing.T) {
	c, srv := newClient(t)
	id := srv.SeedFIR(sampleFIR())
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetFIR(context.Background(), id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Nil(t, c.HTTPClient, "requests must not write shared client fields")
}
