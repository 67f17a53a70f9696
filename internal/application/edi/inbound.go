package edi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Reconciler cierra los cabos sueltos del pipeline: consulta los documentos
// pendientes (sent, cancel_requested) contra la autoridad y descarga el buzón
// entrante de los países que lo ofrecen. Corre periódicamente en segundo plano.
type Reconciler struct {
	d        *Dispatcher
	interval time.Duration
	batch    int
}

// NewReconciler construye el reconciliador sobre el despachador, que aporta
// puertos y asiento transaccional. batch limita los documentos por país y pasada.
func NewReconciler(d *Dispatcher, interval time.Duration, batch int) *Reconciler {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{d: d, interval: interval, batch: batch}
}

// Start ejecuta el bucle hasta que el contexto se cancele. Una pasada fallida
// se registra y se reintenta en el siguiente tick.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.d.log.Info().Dur("interval", r.interval).Msg("reconciliador iniciado")
	for {
		select {
		case <-ctx.Done():
			r.d.log.Info().Msg("reconciliador detenido")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta una pasada completa: polling por país y buzón entrante por
// (empresa, país). Expuesto para el endpoint manual y las pruebas.
func (r *Reconciler) RunOnce(ctx context.Context) {
	countries := r.d.registry.Countries()
	sort.Strings(countries)

	for _, country := range countries {
		if err := r.ResolvePending(ctx, country); err != nil {
			r.d.log.Error().Err(err).Str("country", country).Msg("fallo resolviendo pendientes")
		}
	}

	companies, err := r.d.companies.ListWithCredentials(ctx)
	if err != nil {
		r.d.log.Error().Err(err).Msg("no se pudo listar empresas para el buzón entrante")
		return
	}
	for _, company := range companies {
		sets, err := r.d.creds.ListByCompany(ctx, company.ID)
		if err != nil {
			r.d.log.Error().Err(err).Str("company_id", company.ID).Msg("credenciales no disponibles")
			continue
		}
		for _, creds := range sets {
			adapter, ok := r.d.registry.Lookup(creds.Country)
			if !ok || adapter.ParseInbound == nil {
				continue
			}
			if err := r.FetchInbound(ctx, company, adapter, creds); err != nil {
				r.d.log.Error().Err(err).Str("company_id", company.ID).
					Str("country", creds.Country).Msg("fallo descargando buzón entrante")
			}
		}
	}
}

// ResolvePending consulta el estado de los documentos en vuelo de un país.
// Un fallo de autenticación aborta el país en esta pasada; un timeout o fallo
// de transporte deja el documento como está para el siguiente tick.
func (r *Reconciler) ResolvePending(ctx context.Context, country string) error {
	adapter, ok := r.d.registry.Lookup(country)
	if !ok {
		return fmt.Errorf("país %q sin adaptador", country)
	}

	pending, err := r.d.docs.ListPending(ctx, country, r.batch)
	if err != nil {
		return err
	}
	for _, doc := range pending {
		// Los padres en cancel_requested se resuelven a través de su documento
		// de anulación; aquí solo se consultan los envíos en vuelo.
		if doc.State != pkgedi.StateSent {
			continue
		}
		if err := r.resolveOne(ctx, adapter, doc); err != nil {
			if pkgedi.KindOf(err) == pkgedi.ErrKindAuthentication {
				return err
			}
			r.d.log.Warn().Err(err).Str("document_id", doc.ID).Msg("documento sigue pendiente")
		}
	}
	return nil
}

func (r *Reconciler) resolveOne(ctx context.Context, adapter *Adapter, doc *entity.Document) error {
	creds, err := r.d.creds.Get(ctx, doc.CompanyID, doc.Country)
	if err != nil {
		return err
	}
	if creds == nil {
		return fmt.Errorf("empresa %s sin credenciales para %s", doc.CompanyID, doc.Country)
	}

	// En demo no hay autoridad que consultar: lo enviado se da por aceptado.
	if creds.Environment == entity.EnvironmentDemo {
		return r.d.finalize(ctx, adapter, doc, nil, &pkgedi.Response{
			OK: true, Authoritative: true, Accepted: true,
			Code: "demo", Message: "documento aceptado en ambiente demo",
		}, "", pkgedi.EventAccept)
	}

	if adapter.BuildStatusQuery == nil {
		// País síncrono: no debería haber pendientes; se deja constancia.
		r.d.log.Warn().Str("document_id", doc.ID).Str("country", doc.Country).
			Msg("documento pendiente en país sin consulta de estado")
		return nil
	}

	env, err := adapter.BuildStatusQuery(doc, creds)
	if err != nil {
		return err
	}
	resp, err := r.d.client.Query(ctx, adapter, env, creds)
	if err != nil {
		return err
	}
	if !resp.Authoritative {
		r.d.log.Debug().Str("document_id", doc.ID).Str("code", resp.Code).
			Msg("la autoridad aún no decide")
		return nil
	}

	ev := pkgedi.EventAccept
	if !resp.Accepted {
		ev = pkgedi.EventReject
	}
	return r.d.finalize(ctx, adapter, doc, nil, resp, resp.Message, ev)
}

// FetchInbound descarga y materializa el buzón entrante del país: cada
// documento desconocido produce un adquiriente (si hace falta), una factura
// borrador con sus líneas y un Document ya aceptado por la autoridad.
func (r *Reconciler) FetchInbound(ctx context.Context, company *entity.Company,
	adapter *Adapter, creds *entity.CredentialSet) error {

	if creds.Environment == entity.EnvironmentDemo {
		return nil
	}

	body, err := r.d.client.Fetch(ctx, adapter, creds, "inbound")
	if err != nil {
		return err
	}
	inbound, err := adapter.ParseInbound(body)
	if err != nil {
		return err
	}

	for _, in := range inbound {
		// Deduplicación por clave de acceso: lo ya visto no se rematerializa.
		if existing, err := r.d.docs.GetByAccessKey(ctx, in.AccessKey); err == nil && existing != nil {
			continue
		}
		if err := r.materialize(ctx, company, adapter, in); err != nil {
			r.d.log.Error().Err(err).Str("access_key", in.AccessKey).
				Msg("no se pudo materializar documento entrante")
		}
	}
	return nil
}

func (r *Reconciler) materialize(ctx context.Context, company *entity.Company,
	adapter *Adapter, in *InboundDocument) error {

	customer, err := r.d.customers.GetByCompanyAndTaxID(ctx, company.ID, in.IssuerTaxID)
	if err != nil || customer == nil {
		customer = &entity.Customer{
			ID:        uuid.New().String(),
			CompanyID: company.ID,
			Name:      in.IssuerName,
			TaxID:     in.IssuerTaxID,
			Country:   adapter.Country,
			CreatedAt: r.d.now(),
			UpdatedAt: r.d.now(),
		}
		if err := r.d.customers.Create(ctx, customer); err != nil {
			return fmt.Errorf("no se pudo crear el adquiriente: %w", err)
		}
	}

	net, err := decimal.NewFromString(in.NetTotal)
	if err != nil {
		return fmt.Errorf("net total %q inválido: %w", in.NetTotal, err)
	}
	tax, err := decimal.NewFromString(in.TaxTotal)
	if err != nil {
		return fmt.Errorf("tax total %q inválido: %w", in.TaxTotal, err)
	}
	grand, err := decimal.NewFromString(in.GrandTotal)
	if err != nil {
		return fmt.Errorf("grand total %q inválido: %w", in.GrandTotal, err)
	}

	now := r.d.now()
	invoice := &entity.Invoice{
		ID:         uuid.New().String(),
		CompanyID:  company.ID,
		CustomerID: customer.ID,
		Country:    adapter.Country,
		// Los borradores entrantes no traen numeración propia; la clave de
		// acceso es única por país y sirve de número.
		Series:     "INB",
		Number:     in.AccessKey,
		IssueDate:  in.IssueDate,
		Currency:   in.Currency,
		NetTotal:   net,
		TaxTotal:   tax,
		GrandTotal: grand,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lines := make([]*entity.InvoiceLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		qty, qerr := parseAmount(l.Quantity)
		price, perr := parseAmount(l.UnitPrice)
		rate, rerr := parseAmount(l.TaxRate)
		sub, serr := parseAmount(l.Subtotal)
		if err := errors.Join(qerr, perr, rerr, serr); err != nil {
			// Una línea ilegible no tumba el documento: se descarta y los
			// totales del encabezado (ya validados) mandan.
			r.d.log.Warn().Err(err).Str("access_key", in.AccessKey).Int("line", i+1).
				Msg("línea entrante con montos ilegibles; se descarta")
			continue
		}
		lines = append(lines, &entity.InvoiceLine{
			ID:          uuid.New().String(),
			InvoiceID:   invoice.ID,
			Description: l.Description,
			UnitCode:    l.UnitCode,
			TaxCode:     l.TaxCode,
			Quantity:    qty,
			UnitPrice:   price,
			TaxRate:     rate,
			Subtotal:    sub,
		})
	}
	if err := r.d.invoices.CreateDraft(ctx, invoice, lines); err != nil {
		return fmt.Errorf("no se pudo crear la factura borrador: %w", err)
	}

	doc := &entity.Document{
		ID:              uuid.New().String(),
		InvoiceID:       invoice.ID,
		CompanyID:       company.ID,
		Country:         adapter.Country,
		State:           pkgedi.StateAccepted,
		Kind:            pkgedi.KindIssue,
		AccessKey:       in.AccessKey,
		PayloadReceived: in.Raw,
		Message:         "documento recibido del buzón entrante",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.d.docs.Create(ctx, doc); err != nil {
		return fmt.Errorf("no se pudo registrar el documento entrante: %w", err)
	}

	r.d.log.Info().Str("access_key", in.AccessKey).Str("country", adapter.Country).
		Str("invoice_id", invoice.ID).Msg("documento entrante materializado")
	return nil
}

// parseAmount tolera el campo vacío (los buzones no siempre traen todos los
// montos por línea); un valor presente pero ilegible sí es error.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(s)
}
