package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

func signedDoc(title string) *domain.Document {
	return &domain.Document{Title: title, Status: domain.DocumentStatusSigned}
}

func TestPDFGenerator_BatchCap(t *testing.T) {
	e := newEnv(t)
	for i := range 7 {
		e.handle.Docs.Add(signedDoc(fmt.Sprintf("contract-%d", i)))
	}
	renderer := &testutil.Renderer{URLFor: func(id string) string { return "s3://docs/" + id + ".pdf" }}
	g := NewPDFGenerator(renderer, e.audit, e.iterator, e.directory, e.resolver, 0, e.log)

	result, err := g.ProcessCompany(context.Background(), e.tenant())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Found)
	assert.Equal(t, 5, result.Processed)
	assert.Len(t, renderer.Rendered(), 5)

	remaining, err := e.handle.Docs.FindAwaitingPDF(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "two documents left for the next tick")

	result, err = g.ProcessCompany(context.Background(), e.tenant())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}

func TestPDFGenerator_FailuresAreIsolated(t *testing.T) {
	e := newEnv(t)
	docs := []*domain.Document{signedDoc("a"), signedDoc("b"), signedDoc("c")}
	for _, d := range docs {
		e.handle.Docs.Add(d)
	}
	renderer := &testutil.Renderer{Fail: map[string]error{docs[1].ID.Hex(): errors.New("template missing")}}
	g := NewPDFGenerator(renderer, e.audit, e.iterator, e.directory, e.resolver, 5, e.log)

	result, err := g.ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	require.Len(t, result.Errors.Items, 1)
	assert.Equal(t, ItemError{
		DocumentID: docs[1].ID.Hex(),
		Error:      "pdf_generation_failed",
		Message:    "template missing",
	}, result.Errors.Items[0])

	events := e.handle.Audit.EventsOfType(domain.AuditPDFGenerationFailed)
	require.Len(t, events, 1)
	assert.Equal(t, docs[1].ID.Hex(), events[0].Resource.ID)
	assert.Equal(t, "template missing", events[0].Metadata["error"])
	assert.Equal(t, NamePDF, events[0].Actor.ID)
}

func TestPDFGenerator_ErrorListIsBounded(t *testing.T) {
	e := newEnv(t)
	fail := map[string]error{}
	for i := range 12 {
		d := signedDoc(fmt.Sprint(i))
		e.handle.Docs.Add(d)
		fail[d.ID.Hex()] = errors.New("render failed")
	}
	g := NewPDFGenerator(&testutil.Renderer{Fail: fail}, e.audit, e.iterator, e.directory, e.resolver, 20, e.log)

	result, err := g.ProcessCompany(context.Background(), e.tenant())

	require.NoError(t, err)
	assert.Len(t, result.Errors.Items, 10)
	assert.Equal(t, 12, result.Errors.Total)
}

func TestPDFGenerator_RunAcrossTenants(t *testing.T) {
	e := newEnv(t)
	_, other := e.addTenant("globex")
	e.handle.Docs.Add(signedDoc("a"))
	other.Docs.Add(signedDoc("b"))
	other.Docs.Add(signedDoc("c"))

	g := NewPDFGenerator(&testutil.Renderer{}, e.audit, e.iterator, e.directory, e.resolver, 5, e.log)
	summary, err := g.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Tenants)
	assert.Equal(t, 3, summary.Totals["processed"])
	assert.Equal(t, 1, summary.Results[0].Result.Processed)
	assert.Equal(t, 2, summary.Results[1].Result.Processed)
	assert.NotEmpty(t, summary.RunID)
}

func TestPDFGenerator_HandleQueued(t *testing.T) {
	e := newEnv(t)
	doc := signedDoc("a")
	done := signedDoc("b")
	done.PDFURL = testutil.StringPtr("s3://docs/b.pdf")
	e.handle.Docs.Add(doc)
	e.handle.Docs.Add(done)

	renderer := &testutil.Renderer{URLFor: func(id string) string { return "s3://docs/" + id + ".pdf" }}
	g := NewPDFGenerator(renderer, e.audit, e.iterator, e.directory, e.resolver, 5, e.log)

	job := func(id string) *domain.PDFJob {
		return &domain.PDFJob{CompanyID: e.company.ID.Hex(), CompanyDBName: "acme", DocumentID: id}
	}

	require.NoError(t, g.HandleQueued(context.Background(), job(doc.ID.Hex())))
	require.NoError(t, g.HandleQueued(context.Background(), job(done.ID.Hex())))
	assert.Equal(t, []string{doc.ID.Hex()}, renderer.Rendered())
	assert.Equal(t, "s3://docs/"+doc.ID.Hex()+".pdf", *e.handle.Docs.Get(doc.ID).PDFURL)

	assert.Error(t, g.HandleQueued(context.Background(), job("not-hex")))
}
