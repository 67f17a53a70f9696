package edi_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// ──────────────────────────────────────────────────────────────────────────────
// Reconciliación de pendientes
// ──────────────────────────────────────────────────────────────────────────────

// pendingInvoice deja una factura con documento en sent (flujo asíncrono).
func pendingInvoice(t *testing.T, h *harness) (*entity.Invoice, string) {
	t.Helper()
	inv := h.seedInvoice("BR")
	h.client.send = func(_ *appedi.Adapter, e *appedi.Envelope, _ *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: false,
			Code: "103", Message: "recibido", Ticket: "T-1", AccessKey: e.AccessKey}, nil
	}
	out, err := h.disp.SendInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, pkgedi.StateSent, out.State)
	return inv, out.DocumentID
}

func TestReconciler_ResolvesPendingToAccepted(t *testing.T) {
	h := newHarness(t, testAdapter("BR"))
	h.seedCredentials("BR", entity.EnvironmentTest)
	inv, docID := pendingInvoice(t, h)

	h.client.query = func(_ *appedi.Adapter, e *appedi.Envelope, _ *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: true, Accepted: true,
			Code: "100", Message: "Autorizado", AccessKey: e.AccessKey,
			Raw: []byte("<protNFe cStat=\"100\"/>")}, nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	require.NoError(t, rec.ResolvePending(context.Background(), "BR"))

	doc := h.mustDoc(t, docID)
	assert.Equal(t, pkgedi.StateAccepted, doc.State)
	assert.Equal(t, "accepted", h.mustInvoice(t, inv.ID).EDIStatus)

	// Los adjuntos de aceptación también se generan por esta vía.
	atts, err := memAtts{h.store}.ListByAccessKey(context.Background(), doc.AccessKey)
	require.NoError(t, err)
	assert.NotEmpty(t, atts)
}

func TestReconciler_ResolvesPendingToRejected(t *testing.T) {
	h := newHarness(t, testAdapter("BR"))
	h.seedCredentials("BR", entity.EnvironmentTest)
	inv, docID := pendingInvoice(t, h)

	h.client.query = func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: true, Accepted: false,
			Code: "302", Message: "Rejeição: irregularidade fiscal do emitente"}, nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	require.NoError(t, rec.ResolvePending(context.Background(), "BR"))

	assert.Equal(t, pkgedi.StateRejected, h.mustDoc(t, docID).State)
	assert.Contains(t, h.mustInvoice(t, inv.ID).EDIError, "302")
}

func TestReconciler_UndecidedStaysPending(t *testing.T) {
	h := newHarness(t, testAdapter("BR"))
	h.seedCredentials("BR", entity.EnvironmentTest)
	_, docID := pendingInvoice(t, h)

	h.client.query = func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: false,
			Code: "105", Message: "Lote em processamento"}, nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	require.NoError(t, rec.ResolvePending(context.Background(), "BR"))
	assert.Equal(t, pkgedi.StateSent, h.mustDoc(t, docID).State)
}

func TestReconciler_ResolvesPendingCancellation(t *testing.T) {
	h := newHarness(t, testAdapter("BR"))
	h.seedCredentials("BR", entity.EnvironmentTest)
	inv := acceptedInvoice(t, h)

	// Anulación asíncrona: queda en sent, el padre en cancel_requested.
	h.client.send = func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: false,
			Code: "128", Message: "Evento registrado", Ticket: "T-2"}, nil
	}
	out, err := h.disp.Cancel(context.Background(), inv.ID, validReason)
	require.NoError(t, err)
	require.Equal(t, pkgedi.StateSent, out.State)

	h.client.query = func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: true, Accepted: true,
			Code: "135", Message: "Evento homologado"}, nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	require.NoError(t, rec.ResolvePending(context.Background(), "BR"))

	parent, err := memDocs{h.store}.GetByAccessKey(context.Background(), "KEY-"+inv.ID)
	require.NoError(t, err)
	assert.Equal(t, pkgedi.StateCancelled, parent.State)
	assert.True(t, h.mustInvoice(t, inv.ID).Cancelled)
}

// ──────────────────────────────────────────────────────────────────────────────
// Buzón entrante
// ──────────────────────────────────────────────────────────────────────────────

func inboundAdapter(country string) *appedi.Adapter {
	a := testAdapter(country)
	a.ParseInbound = func(body []byte) ([]*appedi.InboundDocument, error) {
		if len(body) == 0 {
			return nil, nil
		}
		return []*appedi.InboundDocument{{
			AccessKey:   "IN-0001",
			IssuerTaxID: "P051234567X",
			IssuerName:  "Proveedor Keniano Ltd",
			IssueDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
			Currency:    "KES",
			NetTotal:    "5000.00",
			TaxTotal:    "800.00",
			GrandTotal:  "5800.00",
			Lines: []appedi.InboundLine{{
				Description: "Materia prima",
				UnitCode:    "KG",
				TaxCode:     "B",
				Quantity:    "100",
				UnitPrice:   "50.00",
				TaxRate:     "0.16",
				Subtotal:    "5000.00",
			}},
			Raw: body,
		}}, nil
	}
	return a
}

func TestReconciler_MaterializesInboundDocument(t *testing.T) {
	h := newHarness(t, inboundAdapter("KE"))
	creds := h.seedCredentials("KE", entity.EnvironmentTest)

	h.client.fetch = func(_ *appedi.Adapter, _ *entity.CredentialSet, op string) ([]byte, error) {
		require.Equal(t, "inbound", op)
		return []byte(`{"saleList":[{"invcNo":"IN-0001"}]}`), nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	adapter, _ := appedi.Registry{"KE": inboundAdapter("KE")}.Lookup("KE")
	require.NoError(t, rec.FetchInbound(context.Background(), h.company, adapter, creds))

	// El adquiriente desconocido se crea.
	customer, err := memCustomers{h.store}.GetByCompanyAndTaxID(context.Background(), h.company.ID, "P051234567X")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "Proveedor Keniano Ltd", customer.Name)

	// El documento entra ya aceptado, con su factura borrador.
	doc, err := memDocs{h.store}.GetByAccessKey(context.Background(), "IN-0001")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, pkgedi.StateAccepted, doc.State)

	inv := h.mustInvoice(t, doc.InvoiceID)
	assert.Equal(t, "5800.00", inv.GrandTotal.StringFixed(2))
	assert.False(t, inv.Posted, "la factura entrante queda en borrador")
}

func TestReconciler_InboundSkipsLinesWithUnreadableAmounts(t *testing.T) {
	a := testAdapter("KE")
	a.ParseInbound = func(body []byte) ([]*appedi.InboundDocument, error) {
		return []*appedi.InboundDocument{{
			AccessKey:   "IN-0002",
			IssuerTaxID: "P051234567X",
			IssuerName:  "Proveedor Keniano Ltd",
			IssueDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
			Currency:    "KES",
			NetTotal:    "5000.00",
			TaxTotal:    "800.00",
			GrandTotal:  "5800.00",
			Lines: []appedi.InboundLine{
				{Description: "Materia prima", Quantity: "100", UnitPrice: "50.00", Subtotal: "5000.00"},
				{Description: "Línea corrupta", Quantity: "cien", UnitPrice: "50.00", Subtotal: "5000.00"},
			},
			Raw: body,
		}}, nil
	}

	h := newHarness(t, a)
	creds := h.seedCredentials("KE", entity.EnvironmentTest)
	h.client.fetch = func(*appedi.Adapter, *entity.CredentialSet, string) ([]byte, error) {
		return []byte(`{"saleList":[{"invcNo":"IN-0002"}]}`), nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	require.NoError(t, rec.FetchInbound(context.Background(), h.company, a, creds))

	doc, err := memDocs{h.store}.GetByAccessKey(context.Background(), "IN-0002")
	require.NoError(t, err)
	require.NotNil(t, doc, "la línea ilegible no impide materializar el documento")

	lines := h.store.lines[doc.InvoiceID]
	require.Len(t, lines, 1, "la línea con cantidad ilegible se descarta")
	assert.Equal(t, "Materia prima", lines[0].Description)
	assert.Equal(t, "100", lines[0].Quantity.String())
}

func TestReconciler_InboundDeduplicatesByAccessKey(t *testing.T) {
	h := newHarness(t, inboundAdapter("KE"))
	creds := h.seedCredentials("KE", entity.EnvironmentTest)
	h.client.fetch = func(*appedi.Adapter, *entity.CredentialSet, string) ([]byte, error) {
		return []byte(`{"saleList":[{"invcNo":"IN-0001"}]}`), nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	adapter, _ := appedi.Registry{"KE": inboundAdapter("KE")}.Lookup("KE")
	require.NoError(t, rec.FetchInbound(context.Background(), h.company, adapter, creds))
	require.NoError(t, rec.FetchInbound(context.Background(), h.company, adapter, creds))

	count := 0
	for _, doc := range h.store.docs {
		if doc.AccessKey == "IN-0001" {
			count++
		}
	}
	assert.Equal(t, 1, count, "la segunda pasada no duplica el documento")
}

func TestReconciler_RunOnceCoversPollingAndInbound(t *testing.T) {
	h := newHarness(t, inboundAdapter("KE"))
	h.seedCredentials("KE", entity.EnvironmentTest)
	_, docID := pendingInvoiceKE(t, h)

	h.client.query = func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: true, Accepted: true,
			Code: "000", Message: "aceptado"}, nil
	}
	h.client.fetch = func(*appedi.Adapter, *entity.CredentialSet, string) ([]byte, error) {
		return []byte(`{"saleList":[{"invcNo":"IN-0001"}]}`), nil
	}

	rec := appedi.NewReconciler(h.disp, time.Minute, 10)
	rec.RunOnce(context.Background())

	assert.Equal(t, pkgedi.StateAccepted, h.mustDoc(t, docID).State)
	doc, err := memDocs{h.store}.GetByAccessKey(context.Background(), "IN-0001")
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

// pendingInvoiceKE deja una factura keniana con documento en sent.
func pendingInvoiceKE(t *testing.T, h *harness) (*entity.Invoice, string) {
	t.Helper()
	inv := h.seedInvoice("KE")
	h.client.send = func(_ *appedi.Adapter, e *appedi.Envelope, _ *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{OK: true, Authoritative: false,
			Code: "processing", Message: "en cola", Ticket: "T-KE", AccessKey: e.AccessKey}, nil
	}
	out, err := h.disp.SendInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, pkgedi.StateSent, out.State)
	return inv, out.DocumentID
}
