package edi

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	domedi "github.com/jhoicas/edi-gateway/internal/domain/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
)

// Corrección y anulación comparten el pipeline del despachador: elegibilidad,
// sobre, entrega y asiento transaccional. Ambas cuelgan del documento
// autoritativo; nunca mutan la emisión original.

// Correct emite una carta de corrección sobre el documento aceptado de la
// factura. Las correcciones se numeran por factura empezando en 1 y no alteran
// el estado de la emisión.
func (d *Dispatcher) Correct(ctx context.Context, invoiceID, reason string) (SendOutcome, error) {
	out := SendOutcome{InvoiceID: invoiceID}

	if err := domedi.ValidateReason(reason); err != nil {
		al := pkgedi.Blocking(CodeInvalidReason, err.Error())
		al.RecordRef = invoiceID
		out.Alerts = append(out.Alerts, al)
		return out, nil
	}

	prep, ok := d.prepareAmendment(ctx, invoiceID, &out)
	if !ok {
		return out, nil
	}
	if prep.adapter.BuildCorrection == nil {
		out.Alerts = append(out.Alerts, pkgedi.Blocking(CodeOperationUnsupported,
			fmt.Sprintf("%s no admite cartas de corrección", prep.invoice.Country)))
		return out, nil
	}

	seq, err := d.docs.CountByInvoiceAndKind(ctx, invoiceID, pkgedi.KindCorrection)
	if err != nil {
		out.Error = fmt.Sprintf("no se pudo numerar la corrección: %v", err)
		return out, nil
	}
	prep.bctx.ParentAccessKey = prep.parent.AccessKey
	prep.bctx.Sequence = seq + 1
	prep.bctx.Reason = reason

	env, err := prep.adapter.BuildCorrection(prep.bctx)
	if err != nil {
		al := pkgedi.Blocking(CodeBuildFailed, fmt.Sprintf("no se pudo construir la corrección: %v", err))
		al.RecordRef = invoiceID
		out.Alerts = append(out.Alerts, al)
		return out, nil
	}

	now := d.now()
	doc := &entity.Document{
		ID:              uuid.New().String(),
		InvoiceID:       invoiceID,
		CompanyID:       prep.invoice.CompanyID,
		Country:         prep.invoice.Country,
		State:           pkgedi.StateToSend,
		Kind:            pkgedi.KindCorrection,
		AccessKey:       env.AccessKey,
		ParentAccessKey: prep.parent.AccessKey,
		Sequence:        seq + 1,
		CancelReason:    reason,
		PayloadSent:     env.Payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.docs.Create(ctx, doc); err != nil {
		out.Error = fmt.Sprintf("no se pudo registrar la corrección: %v", err)
		return out, nil
	}
	out.DocumentID = doc.ID
	out.AccessKey = doc.AccessKey

	resp, sendErr := d.transmit(ctx, prep.adapter, env, prep.creds)
	out, _ = d.settle(ctx, prep.adapter, doc, prep.bctx, resp, sendErr, out)
	return out, nil
}

// Cancel solicita la anulación del documento aceptado. La emisión pasa a
// cancel_requested y solo vuelve a accepted si la autoridad deniega; la
// factura del anfitrión se marca anulada únicamente con la confirmación.
func (d *Dispatcher) Cancel(ctx context.Context, invoiceID, reason string) (SendOutcome, error) {
	out := SendOutcome{InvoiceID: invoiceID}

	if err := domedi.ValidateReason(reason); err != nil {
		al := pkgedi.Blocking(CodeInvalidReason, err.Error())
		al.RecordRef = invoiceID
		out.Alerts = append(out.Alerts, al)
		return out, nil
	}

	// Anular lo ya anulado es un no-op con advertencia, no un error.
	history, err := d.docs.ListByInvoice(ctx, invoiceID)
	if err != nil {
		out.Error = fmt.Sprintf("historial no disponible: %v", err)
		return out, nil
	}
	for _, doc := range history {
		if doc.State == pkgedi.StateCancelled {
			out.DocumentID = doc.ID
			out.AccessKey = doc.AccessKey
			out.State = doc.State
			out.Alerts = append(out.Alerts, pkgedi.Warning(CodeAlreadyCancelled,
				"la factura ya está anulada; no se solicita de nuevo"))
			return out, nil
		}
	}

	prep, ok := d.prepareAmendment(ctx, invoiceID, &out)
	if !ok {
		return out, nil
	}
	if prep.adapter.BuildCancel == nil {
		out.Alerts = append(out.Alerts, pkgedi.Blocking(CodeOperationUnsupported,
			fmt.Sprintf("%s no admite anulación por vía electrónica", prep.invoice.Country)))
		return out, nil
	}

	// Una anulación en vuelo no se duplica.
	for _, doc := range history {
		if doc.Kind == pkgedi.KindCancel && (doc.State == pkgedi.StateSent || doc.State == pkgedi.StateToSend) {
			out.DocumentID = doc.ID
			out.State = doc.State
			out.Alerts = append(out.Alerts, pkgedi.Warning(CodeAlreadyInFlight,
				"ya existe una solicitud de anulación en curso"))
			return out, nil
		}
	}

	prep.bctx.ParentAccessKey = prep.parent.AccessKey
	prep.bctx.Reason = reason

	env, err := prep.adapter.BuildCancel(prep.bctx)
	if err != nil {
		al := pkgedi.Blocking(CodeBuildFailed, fmt.Sprintf("no se pudo construir la anulación: %v", err))
		al.RecordRef = invoiceID
		out.Alerts = append(out.Alerts, al)
		return out, nil
	}

	// Documento de anulación y transición del padre en la misma transacción.
	now := d.now()
	doc := &entity.Document{
		ID:              uuid.New().String(),
		InvoiceID:       invoiceID,
		CompanyID:       prep.invoice.CompanyID,
		Country:         prep.invoice.Country,
		State:           pkgedi.StateToSend,
		Kind:            pkgedi.KindCancel,
		AccessKey:       env.AccessKey,
		ParentAccessKey: prep.parent.AccessKey,
		CancelReason:    reason,
		PayloadSent:     env.Payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = d.tx.Run(ctx, func(docs repository.DocumentRepository,
		_ repository.AttachmentRepository, _ repository.InvoiceRepository) error {

		if err := docs.Create(ctx, doc); err != nil {
			return err
		}
		if prep.parent.State == pkgedi.StateAccepted {
			locked, err := docs.LockByID(ctx, prep.parent.ID)
			if err != nil {
				return err
			}
			if err := locked.Apply(pkgedi.EventRequestCancel, now); err != nil {
				return err
			}
			return docs.Update(ctx, locked)
		}
		return nil
	})
	if err != nil {
		out.Error = fmt.Sprintf("no se pudo registrar la anulación: %v", err)
		return out, nil
	}
	out.DocumentID = doc.ID
	out.AccessKey = doc.AccessKey

	resp, sendErr := d.transmit(ctx, prep.adapter, env, prep.creds)
	out, _ = d.settle(ctx, prep.adapter, doc, prep.bctx, resp, sendErr, out)
	return out, nil
}

// amendment agrupa lo resuelto por prepareAmendment.
type amendment struct {
	invoice *entity.Invoice
	parent  *entity.Document
	adapter *Adapter
	creds   *entity.CredentialSet
	bctx    *BuildContext
}

// prepareAmendment resuelve los prerrequisitos comunes de corrección y
// anulación: factura, documento autoritativo, adaptador, credenciales y
// contexto de construcción. Acumula alertas en out y devuelve ok=false si
// alguna bloquea.
func (d *Dispatcher) prepareAmendment(ctx context.Context, invoiceID string, out *SendOutcome) (*amendment, bool) {
	inv, err := d.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		out.Error = fmt.Sprintf("factura no disponible: %v", err)
		return nil, false
	}
	lines, err := d.invoices.GetLines(ctx, invoiceID)
	if err != nil {
		out.Error = fmt.Sprintf("líneas no disponibles: %v", err)
		return nil, false
	}

	adapter, creds, alerts := d.eligibility(ctx, inv, lines)
	out.Alerts = append(out.Alerts, alerts...)
	if alerts.HasBlocking() {
		return nil, false
	}

	history, err := d.docs.ListByInvoice(ctx, invoiceID)
	if err != nil {
		out.Error = fmt.Sprintf("historial no disponible: %v", err)
		return nil, false
	}
	parent := domedi.Authoritative(history)
	if parent == nil {
		al := pkgedi.Blocking(CodeNoAcceptedDocument,
			"la factura no tiene documento aceptado sobre el cual operar")
		al.RecordRef = invoiceID
		out.Alerts = append(out.Alerts, al)
		return nil, false
	}

	bctx, err := d.buildContext(ctx, inv, lines, creds)
	if err != nil {
		out.Error = err.Error()
		return nil, false
	}
	return &amendment{invoice: inv, parent: parent, adapter: adapter, creds: creds, bctx: bctx}, true
}
