package edi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domedi "github.com/jhoicas/edi-gateway/internal/domain/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
	"github.com/jhoicas/edi-gateway/pkg/logger"
)

// ── Reporte de lote ──────────────────────────────────────────────────────────

// SendOutcome es el resultado por factura de un lote de envío.
type SendOutcome struct {
	InvoiceID  string        `json:"invoice_id"`
	DocumentID string        `json:"document_id,omitempty"`
	AccessKey  string        `json:"access_key,omitempty"`
	State      pkgedi.State  `json:"state,omitempty"`
	Alerts     pkgedi.Alerts `json:"alerts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// SendReport agrega los resultados del lote. Halted registra los países cuyo
// procesamiento se detuvo por un fallo de autenticación: las facturas
// restantes de ese país no se intentan.
type SendReport struct {
	Outcomes []SendOutcome     `json:"outcomes"`
	Halted   map[string]string `json:"halted,omitempty"`
}

// ── Despachador ──────────────────────────────────────────────────────────────

// Dispatcher orquesta el envío de facturas: elegibilidad, construcción del
// sobre, entrega y asiento transaccional del resultado. Una factura que falla
// nunca detiene el lote; un fallo de autenticación detiene solo su país.
type Dispatcher struct {
	registry  Registry
	client    Client
	tx        TxRunner
	docs      repository.DocumentRepository
	creds     repository.CredentialRepository
	invoices  repository.InvoiceRepository
	companies repository.CompanyRepository
	customers repository.CustomerRepository
	states    repository.StateCodeRepository
	pdf       RepresentationGenerator
	qr        QRGenerator
	log       *logger.Logger
	now       func() time.Time
}

// DispatcherDeps agrupa las dependencias del despachador.
type DispatcherDeps struct {
	Registry  Registry
	Client    Client
	Tx        TxRunner
	Documents repository.DocumentRepository
	Creds     repository.CredentialRepository
	Invoices  repository.InvoiceRepository
	Companies repository.CompanyRepository
	Customers repository.CustomerRepository
	States    repository.StateCodeRepository
	PDF       RepresentationGenerator
	QR        QRGenerator
	Logger    *logger.Logger
	Now       func() time.Time
}

// NewDispatcher construye el despachador. Now es inyectable para pruebas;
// nil usa time.Now.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		registry:  deps.Registry,
		client:    deps.Client,
		tx:        deps.Tx,
		docs:      deps.Documents,
		creds:     deps.Creds,
		invoices:  deps.Invoices,
		companies: deps.Companies,
		customers: deps.Customers,
		states:    deps.States,
		pdf:       deps.PDF,
		qr:        deps.QR,
		log:       deps.Logger,
		now:       now,
	}
}

// SendInvoices procesa el lote en orden. Devuelve un reporte por factura;
// el error de retorno solo cubre fallos del propio orquestador.
func (d *Dispatcher) SendInvoices(ctx context.Context, invoiceIDs []string) (*SendReport, error) {
	report := &SendReport{Halted: map[string]string{}}

	for _, id := range invoiceIDs {
		inv, err := d.invoices.GetByID(ctx, id)
		if err != nil {
			report.Outcomes = append(report.Outcomes, SendOutcome{
				InvoiceID: id,
				Error:     fmt.Sprintf("factura no disponible: %v", err),
			})
			continue
		}

		if reason, halted := report.Halted[inv.Country]; halted {
			report.Outcomes = append(report.Outcomes, SendOutcome{
				InvoiceID: id,
				Alerts: pkgedi.Alerts{pkgedi.Blocking(CodeCountryHalted,
					fmt.Sprintf("país %s detenido en este lote: %s", inv.Country, reason))},
			})
			continue
		}

		out, halt := d.sendOne(ctx, inv)
		report.Outcomes = append(report.Outcomes, out)
		if halt != "" {
			report.Halted[inv.Country] = halt
			d.log.Warn().Str("country", inv.Country).Str("reason", halt).
				Msg("lote detenido para el país por fallo de autenticación")
		}
	}
	return report, nil
}

// SendInvoice es la variante de una sola factura usada por el endpoint manual.
func (d *Dispatcher) SendInvoice(ctx context.Context, invoiceID string) (SendOutcome, error) {
	report, err := d.SendInvoices(ctx, []string{invoiceID})
	if err != nil {
		return SendOutcome{}, err
	}
	return report.Outcomes[0], nil
}

// sendOne ejecuta el pipeline completo para una factura. El segundo valor de
// retorno, si no es vacío, es el motivo para detener el país en el lote.
func (d *Dispatcher) sendOne(ctx context.Context, inv *entity.Invoice) (SendOutcome, string) {
	out := SendOutcome{InvoiceID: inv.ID}

	lines, err := d.invoices.GetLines(ctx, inv.ID)
	if err != nil {
		out.Error = fmt.Sprintf("líneas no disponibles: %v", err)
		return out, ""
	}

	adapter, creds, alerts := d.eligibility(ctx, inv, lines)
	out.Alerts = alerts
	if alerts.HasBlocking() {
		return out, ""
	}

	history, err := d.docs.ListByInvoice(ctx, inv.ID)
	if err != nil {
		out.Error = fmt.Sprintf("historial no disponible: %v", err)
		return out, ""
	}

	// Idempotencia: un documento autoritativo o en vuelo cierra el reenvío.
	if auth := domedi.Authoritative(history); auth != nil {
		out.DocumentID = auth.ID
		out.AccessKey = auth.AccessKey
		out.State = auth.State
		out.Alerts = append(out.Alerts, pkgedi.Warning(CodeAlreadyAccepted,
			"la factura ya tiene un documento aceptado; no se reenvía"))
		return out, ""
	}

	var doc *entity.Document
	if open := domedi.OpenDocument(history); open != nil {
		if open.State == pkgedi.StateSent {
			out.DocumentID = open.ID
			out.AccessKey = open.AccessKey
			out.State = open.State
			out.Alerts = append(out.Alerts, pkgedi.Warning(CodeAlreadyInFlight,
				"la factura tiene un envío en curso; el reconciliador lo resolverá"))
			return out, ""
		}
		if open.State == pkgedi.StateToSend && open.Kind == pkgedi.KindIssue {
			doc = open // reintento del mismo documento
		}
	}

	bctx, err := d.buildContext(ctx, inv, lines, creds)
	if err != nil {
		out.Error = err.Error()
		return out, ""
	}

	// Advertencias sobre el contexto completo (emisor y adquiriente ya
	// cargados): catálogo de estados primero, luego las propias del país.
	// Nunca bloquean.
	out.Alerts = append(out.Alerts, d.stateCatalogueAlert(ctx, inv.Country, bctx.Company)...)
	if adapter.Warnings != nil {
		out.Alerts = append(out.Alerts, adapter.Warnings(bctx)...)
	}

	env, err := adapter.BuildIssue(bctx)
	if err != nil {
		al := pkgedi.Blocking(CodeBuildFailed, fmt.Sprintf("no se pudo construir el sobre: %v", err))
		al.RecordRef = inv.ID
		out.Alerts = append(out.Alerts, al)
		return out, ""
	}

	// Deduplicación por clave de acceso: si otra fila viva ya la reclama, se
	// adopta en lugar de duplicar el envío.
	if existing, err := d.docs.GetByAccessKey(ctx, env.AccessKey); err == nil && existing != nil {
		if (doc == nil || existing.ID != doc.ID) && !existing.State.Terminal() {
			out.DocumentID = existing.ID
			out.AccessKey = existing.AccessKey
			out.State = existing.State
			out.Alerts = append(out.Alerts, pkgedi.Warning(CodeDuplicateAccessKey,
				fmt.Sprintf("la clave de acceso %s ya pertenece al documento %s", env.AccessKey, existing.ID)))
			return out, ""
		}
	}

	now := d.now()
	if doc == nil {
		doc = &entity.Document{
			ID:          uuid.New().String(),
			InvoiceID:   inv.ID,
			CompanyID:   inv.CompanyID,
			Country:     inv.Country,
			State:       pkgedi.StateToSend,
			Kind:        pkgedi.KindIssue,
			AccessKey:   env.AccessKey,
			PayloadSent: env.Payload,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := d.docs.Create(ctx, doc); err != nil {
			out.Error = fmt.Sprintf("no se pudo registrar el documento: %v", err)
			return out, ""
		}
	} else {
		doc.AccessKey = env.AccessKey
		doc.PayloadSent = env.Payload
		doc.UpdatedAt = now
		if err := d.docs.Update(ctx, doc); err != nil {
			out.Error = fmt.Sprintf("no se pudo actualizar el documento: %v", err)
			return out, ""
		}
	}
	out.DocumentID = doc.ID
	out.AccessKey = doc.AccessKey

	resp, sendErr := d.transmit(ctx, adapter, env, creds)
	return d.settle(ctx, adapter, doc, bctx, resp, sendErr, out)
}

// transmit entrega el sobre. En ambiente demo la aceptación se simula sin
// tocar la red: firma y persistencia reales, autoridad ficticia.
func (d *Dispatcher) transmit(ctx context.Context, adapter *Adapter, env *Envelope,
	creds *entity.CredentialSet) (*pkgedi.Response, error) {

	if creds.Environment == entity.EnvironmentDemo {
		return &pkgedi.Response{
			OK:            true,
			Authoritative: true,
			Accepted:      true,
			Code:          "demo",
			Message:       "documento aceptado en ambiente demo",
			AccessKey:     env.AccessKey,
		}, nil
	}
	return d.client.Send(ctx, adapter, env, creds)
}

// settle traduce el resultado de la red a transiciones de estado. La política
// por clase de error vive aquí y en ningún otro sitio.
func (d *Dispatcher) settle(ctx context.Context, adapter *Adapter, doc *entity.Document,
	bctx *BuildContext, resp *pkgedi.Response, sendErr error, out SendOutcome) (SendOutcome, string) {

	if sendErr != nil {
		switch pkgedi.KindOf(sendErr) {
		case pkgedi.ErrKindTimeout:
			// La petición pudo haber llegado: el documento queda en sent y el
			// reconciliador decide con la consulta de estado.
			if err := d.finalize(ctx, adapter, doc, bctx, resp,
				"presupuesto de tiempo agotado; pendiente de consulta", pkgedi.EventSubmit); err != nil {
				out.Error = err.Error()
				return out, ""
			}
			out.State = doc.State
			return out, ""

		case pkgedi.ErrKindAuthentication:
			if err := d.finalize(ctx, adapter, doc, bctx, resp, sendErr.Error(), pkgedi.EventFail); err != nil {
				out.Error = err.Error()
				return out, sendErr.Error()
			}
			out.State = doc.State
			out.Error = sendErr.Error()
			return out, sendErr.Error()

		case pkgedi.ErrKindBusiness:
			// La autoridad respondió con rechazo: decisión final, no reintento.
			events := []pkgedi.Event{pkgedi.EventSubmit, pkgedi.EventReject}
			if doc.State == pkgedi.StateSent {
				events = []pkgedi.Event{pkgedi.EventReject}
			}
			if err := d.finalize(ctx, adapter, doc, bctx, resp, sendErr.Error(), events...); err != nil {
				out.Error = err.Error()
				return out, ""
			}
			out.State = doc.State
			return out, ""

		case pkgedi.ErrKindValidation, pkgedi.ErrKindConfiguration:
			// Nunca llegó a la red; el documento sigue en to_send y el operador
			// corrige el dato antes de reintentar.
			al := pkgedi.Blocking(CodeBuildFailed, sendErr.Error())
			al.RecordRef = doc.InvoiceID
			out.Alerts = append(out.Alerts, al)
			out.State = doc.State
			return out, ""

		default: // transporte con reintentos agotados
			if err := d.finalize(ctx, adapter, doc, bctx, resp, sendErr.Error(), pkgedi.EventFail); err != nil {
				out.Error = err.Error()
				return out, ""
			}
			out.State = doc.State
			out.Error = sendErr.Error()
			return out, ""
		}
	}

	switch {
	case resp.Authoritative && resp.Accepted:
		if err := d.finalize(ctx, adapter, doc, bctx, resp, resp.Message,
			pkgedi.EventSubmit, pkgedi.EventAccept); err != nil {
			out.Error = err.Error()
			return out, ""
		}
	case resp.Authoritative:
		if err := d.finalize(ctx, adapter, doc, bctx, resp, resp.Message,
			pkgedi.EventSubmit, pkgedi.EventReject); err != nil {
			out.Error = err.Error()
			return out, ""
		}
	case resp.OK:
		// Flujo asíncrono: recibido pero sin decisión; queda en sent con ticket.
		if err := d.finalize(ctx, adapter, doc, bctx, resp, resp.Message, pkgedi.EventSubmit); err != nil {
			out.Error = err.Error()
			return out, ""
		}
	default:
		if err := d.finalize(ctx, adapter, doc, bctx, resp, resp.Message, pkgedi.EventFail); err != nil {
			out.Error = err.Error()
			return out, ""
		}
		out.Error = resp.Message
	}
	out.State = doc.State
	out.AccessKey = doc.AccessKey
	return out, ""
}

// finalize asienta el resultado en una sola transacción: bloqueo de fila,
// transiciones, respuesta, adjuntos, actualización del padre en anulaciones y
// espejo de la factura. Documento primero, espejo después.
func (d *Dispatcher) finalize(ctx context.Context, adapter *Adapter, doc *entity.Document,
	bctx *BuildContext, resp *pkgedi.Response, message string, events ...pkgedi.Event) error {

	now := d.now()
	err := d.tx.Run(ctx, func(docs repository.DocumentRepository,
		atts repository.AttachmentRepository, invoices repository.InvoiceRepository) error {

		locked, err := docs.LockByID(ctx, doc.ID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := locked.Apply(ev, now); err != nil {
				return err
			}
		}
		locked.Message = message
		if resp != nil {
			locked.PayloadReceived = resp.Raw
			if resp.Ticket != "" {
				locked.Ticket = resp.Ticket
			}
			if resp.AccessKey != "" {
				locked.AccessKey = resp.AccessKey
			}
			if resp.Code != "" && resp.Message != "" {
				locked.Message = fmt.Sprintf("[%s] %s", resp.Code, resp.Message)
			}
		}
		if err := docs.Update(ctx, locked); err != nil {
			return err
		}

		if locked.State == pkgedi.StateAccepted {
			if err := d.storeAcceptedArtifacts(ctx, atts, adapter, locked, bctx, resp); err != nil {
				return err
			}
		}

		// Un documento de anulación resuelto arrastra al padre.
		if locked.Kind == pkgedi.KindCancel && locked.ParentAccessKey != "" {
			switch locked.State {
			case pkgedi.StateAccepted, pkgedi.StateRejected:
				if err := d.settleParent(ctx, docs, invoices, locked, now); err != nil {
					return err
				}
			}
		}

		return d.mirror(ctx, docs, invoices, locked)
	})
	if err != nil {
		return err
	}

	// Relee el estado final para el llamador.
	fresh, gerr := d.docs.GetByID(ctx, doc.ID)
	if gerr == nil && fresh != nil {
		*doc = *fresh
	}
	return nil
}

// settleParent aplica confirm_cancel o deny_cancel al documento autoritativo
// referenciado por la anulación. Solo la confirmación marca la factura.
func (d *Dispatcher) settleParent(ctx context.Context, docs repository.DocumentRepository,
	invoices repository.InvoiceRepository, cancel *entity.Document, now time.Time) error {

	parent, err := docs.GetByAccessKey(ctx, cancel.ParentAccessKey)
	if err != nil || parent == nil {
		return fmt.Errorf("documento padre %s no encontrado: %w", cancel.ParentAccessKey, err)
	}
	locked, err := docs.LockByID(ctx, parent.ID)
	if err != nil {
		return err
	}

	ev := pkgedi.EventConfirmCancel
	if cancel.State == pkgedi.StateRejected {
		ev = pkgedi.EventDenyCancel
	}
	if err := locked.Apply(ev, now); err != nil {
		return err
	}
	if err := docs.Update(ctx, locked); err != nil {
		return err
	}
	if ev == pkgedi.EventConfirmCancel {
		return invoices.MarkCancelled(ctx, locked.InvoiceID)
	}
	return nil
}

// storeAcceptedArtifacts adjunta los artefactos del documento aceptado: XML
// enviado, respuesta de la autoridad, representación PDF y QR. El PDF y el QR
// son mejor esfuerzo; su fallo no revierte la aceptación.
func (d *Dispatcher) storeAcceptedArtifacts(ctx context.Context, atts repository.AttachmentRepository,
	adapter *Adapter, doc *entity.Document, bctx *BuildContext, resp *pkgedi.Response) error {

	now := d.now()
	put := func(name, mime string, data []byte) error {
		return atts.Put(ctx, &entity.Attachment{
			ID:        uuid.New().String(),
			InvoiceID: doc.InvoiceID,
			AccessKey: doc.AccessKey,
			Name:      name,
			MimeType:  mime,
			Data:      data,
			CreatedAt: now,
		})
	}

	if len(doc.PayloadSent) > 0 {
		if err := put(xmlAttachmentName(doc.Country, doc.AccessKey), "application/xml", doc.PayloadSent); err != nil {
			return err
		}
	}
	if resp != nil && len(resp.Raw) > 0 {
		if err := put(responseAttachmentName(doc.Country, doc.AccessKey), "application/xml", resp.Raw); err != nil {
			return err
		}
	}
	if resp != nil {
		for _, ra := range resp.Attachments {
			if err := put(ra.Name, ra.MimeType, ra.Data); err != nil {
				return err
			}
		}
	}

	// La representación gráfica y el QR solo acompañan a la emisión.
	if doc.Kind != pkgedi.KindIssue {
		return nil
	}

	if bctx == nil {
		var err error
		if bctx, err = d.rebuildContext(ctx, doc); err != nil {
			d.log.Warn().Err(err).Str("document_id", doc.ID).
				Msg("sin contexto para la representación gráfica")
			return nil
		}
	}

	if d.pdf != nil {
		pdfBytes, err := d.pdf.Generate(doc, bctx.Invoice, bctx.Company, bctx.Customer, bctx.Lines)
		if err != nil {
			d.log.Warn().Err(err).Str("document_id", doc.ID).Msg("fallo generando representación PDF")
		} else if err := put(pdfAttachmentName(doc.Country, doc.AccessKey), "application/pdf", pdfBytes); err != nil {
			return err
		}
	}

	if d.qr != nil && adapter.QRPayload != nil {
		png, err := d.qr.Generate(adapter.QRPayload(doc, bctx.Invoice), 256)
		if err != nil {
			d.log.Warn().Err(err).Str("document_id", doc.ID).Msg("fallo generando QR")
		} else if err := put(qrAttachmentName(doc.Country, doc.AccessKey), "image/png", png); err != nil {
			return err
		}
	}
	return nil
}

// mirror espeja el estado consolidado en la factura del anfitrión.
func (d *Dispatcher) mirror(ctx context.Context, docs repository.DocumentRepository,
	invoices repository.InvoiceRepository, doc *entity.Document) error {

	all, err := docs.ListByInvoice(ctx, doc.InvoiceID)
	if err != nil {
		return err
	}
	status := domedi.MirrorStatus(all)

	accessKey := doc.AccessKey
	if doc.ParentAccessKey != "" {
		accessKey = doc.ParentAccessKey
	}
	if auth := domedi.Authoritative(all); auth != nil {
		accessKey = auth.AccessKey
	}

	errMsg := ""
	if latest := domedi.Latest(all); latest != nil &&
		(latest.State == pkgedi.StateError || latest.State == pkgedi.StateRejected) {
		errMsg = latest.Message
	}
	return invoices.UpdateMirror(ctx, doc.InvoiceID, status, accessKey, errMsg)
}

// buildContext carga los datos maestros de la factura para el builder de país.
func (d *Dispatcher) buildContext(ctx context.Context, inv *entity.Invoice,
	lines []*entity.InvoiceLine, creds *entity.CredentialSet) (*BuildContext, error) {

	company, err := d.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("empresa no disponible: %w", err)
	}
	customer, err := d.customers.GetByID(ctx, inv.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("adquiriente no disponible: %w", err)
	}
	return &BuildContext{
		Invoice:     inv,
		Lines:       lines,
		Company:     company,
		Customer:    customer,
		Credentials: creds,
		Now:         d.now(),
	}, nil
}

// rebuildContext reconstruye el contexto desde un documento ya persistido
// (camino del reconciliador, donde no hay BuildContext vivo).
func (d *Dispatcher) rebuildContext(ctx context.Context, doc *entity.Document) (*BuildContext, error) {
	inv, err := d.invoices.GetByID(ctx, doc.InvoiceID)
	if err != nil {
		return nil, err
	}
	lines, err := d.invoices.GetLines(ctx, doc.InvoiceID)
	if err != nil {
		return nil, err
	}
	creds, err := d.creds.Get(ctx, doc.CompanyID, doc.Country)
	if err != nil {
		return nil, err
	}
	return d.buildContext(ctx, inv, lines, creds)
}
