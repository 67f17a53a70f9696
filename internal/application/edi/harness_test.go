package edi_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
	"github.com/jhoicas/edi-gateway/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Almacén en memoria: implementa los puertos de repositorio para las pruebas
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu sync.Mutex

	docs      map[string]*entity.Document
	atts      map[string]*entity.Attachment // access_key + "/" + name
	invoices  map[string]*entity.Invoice
	lines     map[string][]*entity.InvoiceLine
	creds     map[string]*entity.CredentialSet // company_id + "/" + country
	companies map[string]*entity.Company
	customers map[string]*entity.Customer
	states    map[string]string // country + "/" + code -> nombre
}

func newMemStore() *memStore {
	return &memStore{
		docs:      map[string]*entity.Document{},
		atts:      map[string]*entity.Attachment{},
		invoices:  map[string]*entity.Invoice{},
		lines:     map[string][]*entity.InvoiceLine{},
		creds:     map[string]*entity.CredentialSet{},
		companies: map[string]*entity.Company{},
		customers: map[string]*entity.Customer{},
		states:    map[string]string{},
	}
}

// ── Documentos ────────────────────────────────────────────────────────────────

type memDocs struct{ s *memStore }

func (m memDocs) Create(_ context.Context, doc *entity.Document) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *doc
	m.s.docs[doc.ID] = &cp
	return nil
}

func (m memDocs) Update(_ context.Context, doc *entity.Document) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.docs[doc.ID]; !ok {
		return fmt.Errorf("documento %s no existe", doc.ID)
	}
	cp := *doc
	m.s.docs[doc.ID] = &cp
	return nil
}

func (m memDocs) GetByID(_ context.Context, id string) (*entity.Document, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	doc, ok := m.s.docs[id]
	if !ok {
		return nil, fmt.Errorf("documento %s no existe", id)
	}
	cp := *doc
	return &cp, nil
}

func (m memDocs) GetByAccessKey(_ context.Context, accessKey string) (*entity.Document, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, doc := range m.s.docs {
		if doc.AccessKey == accessKey {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memDocs) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.Document, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*entity.Document
	for _, doc := range m.s.docs {
		if doc.InvoiceID == invoiceID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memDocs) CountByInvoiceAndKind(_ context.Context, invoiceID string, kind pkgedi.Kind) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, doc := range m.s.docs {
		if doc.InvoiceID == invoiceID && doc.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (m memDocs) ListPending(_ context.Context, country string, limit int) ([]*entity.Document, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*entity.Document
	for _, doc := range m.s.docs {
		if doc.Country == country && doc.State.Pending() {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memDocs) LockByID(ctx context.Context, id string) (*entity.Document, error) {
	return m.GetByID(ctx, id)
}

// ── Adjuntos ──────────────────────────────────────────────────────────────────

type memAtts struct{ s *memStore }

func (m memAtts) Put(_ context.Context, att *entity.Attachment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *att
	m.s.atts[att.AccessKey+"/"+att.Name] = &cp
	return nil
}

func (m memAtts) ListByAccessKey(_ context.Context, accessKey string) ([]*entity.Attachment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*entity.Attachment
	for _, att := range m.s.atts {
		if att.AccessKey == accessKey {
			cp := *att
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memAtts) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.Attachment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*entity.Attachment
	for _, att := range m.s.atts {
		if att.InvoiceID == invoiceID {
			cp := *att
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memAtts) Get(_ context.Context, accessKey, name string) (*entity.Attachment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	att, ok := m.s.atts[accessKey+"/"+name]
	if !ok {
		return nil, fmt.Errorf("adjunto %s/%s no existe", accessKey, name)
	}
	cp := *att
	return &cp, nil
}

// ── Facturas ──────────────────────────────────────────────────────────────────

type memInvoices struct{ s *memStore }

func (m memInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	inv, ok := m.s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("factura %s no existe", id)
	}
	cp := *inv
	return &cp, nil
}

func (m memInvoices) GetLines(_ context.Context, invoiceID string) ([]*entity.InvoiceLine, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.lines[invoiceID], nil
}

func (m memInvoices) UpdateMirror(_ context.Context, invoiceID, status, accessKey, errMsg string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	inv, ok := m.s.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("factura %s no existe", invoiceID)
	}
	inv.EDIStatus = status
	inv.EDIAccessKey = accessKey
	inv.EDIError = errMsg
	return nil
}

func (m memInvoices) MarkCancelled(_ context.Context, invoiceID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	inv, ok := m.s.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("factura %s no existe", invoiceID)
	}
	inv.Cancelled = true
	return nil
}

func (m memInvoices) CreateDraft(_ context.Context, invoice *entity.Invoice, lines []*entity.InvoiceLine) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *invoice
	m.s.invoices[invoice.ID] = &cp
	m.s.lines[invoice.ID] = lines
	return nil
}

// ── Credenciales, empresas y adquirientes ─────────────────────────────────────

type memCreds struct{ s *memStore }

func (m memCreds) Get(_ context.Context, companyID, country string) (*entity.CredentialSet, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	creds, ok := m.s.creds[companyID+"/"+country]
	if !ok {
		return nil, nil
	}
	cp := *creds
	return &cp, nil
}

func (m memCreds) Upsert(_ context.Context, creds *entity.CredentialSet) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *creds
	m.s.creds[creds.CompanyID+"/"+creds.Country] = &cp
	return nil
}

func (m memCreds) ListByCompany(_ context.Context, companyID string) ([]*entity.CredentialSet, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*entity.CredentialSet
	for _, creds := range m.s.creds {
		if creds.CompanyID == companyID {
			cp := *creds
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out, nil
}

func (m memCreds) Delete(_ context.Context, companyID, country string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.creds, companyID+"/"+country)
	return nil
}

type memCompanies struct{ s *memStore }

func (m memCompanies) GetByID(_ context.Context, id string) (*entity.Company, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.companies[id]
	if !ok {
		return nil, fmt.Errorf("empresa %s no existe", id)
	}
	cp := *c
	return &cp, nil
}

func (m memCompanies) ListWithCredentials(_ context.Context) ([]*entity.Company, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := map[string]bool{}
	for _, creds := range m.s.creds {
		seen[creds.CompanyID] = true
	}
	var out []*entity.Company
	for id, c := range m.s.companies {
		if seen[id] {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCustomers struct{ s *memStore }

func (m memCustomers) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.customers[id]
	if !ok {
		return nil, fmt.Errorf("adquiriente %s no existe", id)
	}
	cp := *c
	return &cp, nil
}

func (m memCustomers) GetByCompanyAndTaxID(_ context.Context, companyID, taxID string) (*entity.Customer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.customers {
		if c.CompanyID == companyID && c.TaxID == taxID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memCustomers) Create(_ context.Context, customer *entity.Customer) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *customer
	m.s.customers[customer.ID] = &cp
	return nil
}

type memStates struct{ s *memStore }

func (m memStates) Name(_ context.Context, country, code string) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.states[country+"/"+code], nil
}

// ── Transacciones y generadores ──────────────────────────────────────────────

type memTx struct{ s *memStore }

func (m memTx) Run(ctx context.Context, fn func(repository.DocumentRepository,
	repository.AttachmentRepository, repository.InvoiceRepository) error) error {
	return fn(memDocs{m.s}, memAtts{m.s}, memInvoices{m.s})
}

type fakePDF struct{}

func (fakePDF) Generate(*entity.Document, *entity.Invoice, *entity.Company,
	*entity.Customer, []*entity.InvoiceLine) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}

type fakeQR struct{}

func (fakeQR) Generate(payload string, _ int) ([]byte, error) {
	return []byte("PNG:" + payload), nil
}

// fakeClient guioniza las respuestas del WS por función.
type fakeClient struct {
	send  func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error)
	query func(*appedi.Adapter, *appedi.Envelope, *entity.CredentialSet) (*pkgedi.Response, error)
	fetch func(*appedi.Adapter, *entity.CredentialSet, string) ([]byte, error)
}

func (c *fakeClient) Send(_ context.Context, a *appedi.Adapter, e *appedi.Envelope,
	cr *entity.CredentialSet) (*pkgedi.Response, error) {
	if c.send == nil {
		return nil, fmt.Errorf("send no guionizado")
	}
	return c.send(a, e, cr)
}

func (c *fakeClient) Query(_ context.Context, a *appedi.Adapter, e *appedi.Envelope,
	cr *entity.CredentialSet) (*pkgedi.Response, error) {
	if c.query == nil {
		return nil, fmt.Errorf("query no guionizado")
	}
	return c.query(a, e, cr)
}

func (c *fakeClient) Fetch(_ context.Context, a *appedi.Adapter, cr *entity.CredentialSet,
	op string) ([]byte, error) {
	if c.fetch == nil {
		return nil, fmt.Errorf("fetch no guionizado")
	}
	return c.fetch(a, cr, op)
}

// ──────────────────────────────────────────────────────────────────────────────
// Adaptador de país de prueba y arnés
// ──────────────────────────────────────────────────────────────────────────────

// testAdapter construye un adaptador mínimo: clave de acceso determinista por
// factura, sobres XML triviales y consulta de estado.
func testAdapter(country string) *appedi.Adapter {
	return &appedi.Adapter{
		Country: country,
		Name:    "adaptador de prueba",
		Auth:    appedi.AuthBearer,
		Needs:   appedi.CredentialNeeds{Token: true},
		BuildIssue: func(b *appedi.BuildContext) (*appedi.Envelope, error) {
			key := "KEY-" + b.Invoice.ID
			return &appedi.Envelope{
				Payload:     []byte("<doc id=\"" + key + "\"/>"),
				ContentType: "application/xml",
				Filename:    country + "-" + key + ".xml",
				AccessKey:   key,
			}, nil
		},
		BuildCorrection: func(b *appedi.BuildContext) (*appedi.Envelope, error) {
			key := fmt.Sprintf("CCE-%s-%d", b.Invoice.ID, b.Sequence)
			return &appedi.Envelope{
				Payload:     []byte("<correccion n=\"" + key + "\"/>"),
				ContentType: "application/xml",
				AccessKey:   key,
			}, nil
		},
		BuildCancel: func(b *appedi.BuildContext) (*appedi.Envelope, error) {
			key := "CANCEL-" + b.Invoice.ID
			return &appedi.Envelope{
				Payload:     []byte("<anulacion de=\"" + b.ParentAccessKey + "\"/>"),
				ContentType: "application/xml",
				AccessKey:   key,
			}, nil
		},
		BuildStatusQuery: func(doc *entity.Document, _ *entity.CredentialSet) (*appedi.Envelope, error) {
			return &appedi.Envelope{
				Payload:     []byte("<consulta clave=\"" + doc.AccessKey + "\"/>"),
				ContentType: "application/xml",
				AccessKey:   doc.AccessKey,
			}, nil
		},
		QRPayload: func(doc *entity.Document, _ *entity.Invoice) string {
			return "qr://" + doc.AccessKey
		},
	}
}

type harness struct {
	store  *memStore
	client *fakeClient
	disp   *appedi.Dispatcher

	company  *entity.Company
	customer *entity.Customer
}

func newHarness(t *testing.T, adapters ...*appedi.Adapter) *harness {
	t.Helper()

	store := newMemStore()
	client := &fakeClient{}

	registry := appedi.Registry{}
	for _, a := range adapters {
		registry[a.Country] = a
	}

	company := &entity.Company{
		ID: uuid.New().String(), Name: "Emisora de Prueba SA",
		TaxID: "900123456", Country: "BR", StateCode: "35", TimeZone: "UTC",
	}
	customer := &entity.Customer{
		ID: uuid.New().String(), CompanyID: company.ID,
		Name: "Cliente de Prueba", TaxID: "800765432", Country: "BR",
	}
	store.companies[company.ID] = company
	store.customers[customer.ID] = customer

	// El código de estado del emisor está catalogado para cada país bajo
	// prueba; los casos de código desconocido lo vacían explícitamente.
	for _, a := range adapters {
		store.states[a.Country+"/"+company.StateCode] = "Estado de Prueba"
	}

	disp := appedi.NewDispatcher(appedi.DispatcherDeps{
		Registry:  registry,
		Client:    client,
		Tx:        memTx{store},
		Documents: memDocs{store},
		Creds:     memCreds{store},
		Invoices:  memInvoices{store},
		Companies: memCompanies{store},
		Customers: memCustomers{store},
		States:    memStates{store},
		PDF:       fakePDF{},
		QR:        fakeQR{},
		Logger:    logger.New(logger.Config{Env: "development", Level: "error"}),
	})

	return &harness{store: store, client: client, disp: disp, company: company, customer: customer}
}

// seedCredentials registra un CredentialSet completo para el país.
func (h *harness) seedCredentials(country, environment string) *entity.CredentialSet {
	creds := &entity.CredentialSet{
		ID:          uuid.New().String(),
		CompanyID:   h.company.ID,
		Country:     country,
		Environment: environment,
		TaxpayerID:  h.company.TaxID,
		Token:       "token-de-prueba",
		Endpoints: map[string]string{
			"submit":  "https://wsprueba.example/submit",
			"query":   "https://wsprueba.example/query",
			"inbound": "https://wsprueba.example/inbound",
		},
	}
	h.store.creds[creds.CompanyID+"/"+creds.Country] = creds
	return creds
}

// seedInvoice crea una factura contabilizada y coherente: 1000.00 neto,
// 180.00 de impuesto al 18%, 1180.00 total.
func (h *harness) seedInvoice(country string) *entity.Invoice {
	inv := &entity.Invoice{
		ID:         uuid.New().String(),
		CompanyID:  h.company.ID,
		CustomerID: h.customer.ID,
		Country:    country,
		Series:     "A",
		Number:     "1042",
		IssueDate:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Currency:   "BRL",
		NetTotal:   decimal.RequireFromString("1000.00"),
		TaxTotal:   decimal.RequireFromString("180.00"),
		GrandTotal: decimal.RequireFromString("1180.00"),
		Posted:     true,
	}
	h.store.invoices[inv.ID] = inv
	h.store.lines[inv.ID] = []*entity.InvoiceLine{{
		ID:          uuid.New().String(),
		InvoiceID:   inv.ID,
		Description: "Servicio profesional",
		UnitCode:    "UN",
		Quantity:    decimal.RequireFromString("1"),
		UnitPrice:   decimal.RequireFromString("1000.00"),
		TaxCode:     "ICMS",
		TaxRate:     decimal.RequireFromString("0.18"),
		Subtotal:    decimal.RequireFromString("1000.00"),
	}}
	return inv
}

// mustDoc devuelve el documento releído del almacén.
func (h *harness) mustDoc(t *testing.T, id string) *entity.Document {
	t.Helper()
	doc, err := memDocs{h.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// mustInvoice devuelve la factura releída del almacén.
func (h *harness) mustInvoice(t *testing.T, id string) *entity.Invoice {
	t.Helper()
	inv, err := memInvoices{h.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return inv
}

// acceptAll guioniza el cliente para aceptar todo sincrónicamente.
func (h *harness) acceptAll() {
	h.client.send = func(_ *appedi.Adapter, e *appedi.Envelope, _ *entity.CredentialSet) (*pkgedi.Response, error) {
		return &pkgedi.Response{
			OK: true, Authoritative: true, Accepted: true,
			Code: "100", Message: "Autorizado el uso del documento",
			AccessKey: e.AccessKey, Raw: []byte("<respuesta cStat=\"100\"/>"),
		}, nil
	}
}
