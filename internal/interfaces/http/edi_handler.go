package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/edi-gateway/internal/application/dto"
	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

// EDIHandler maneja las peticiones HTTP del pipeline de facturación
// electrónica (protegido). El resultado de cada operación viaja en el
// SendOutcome/SendReport del despachador: los fallos por factura nunca son
// errores HTTP.
type EDIHandler struct {
	dispatcher *appedi.Dispatcher
	reconciler *appedi.Reconciler
	docs       repository.DocumentRepository
	atts       repository.AttachmentRepository
	invoices   repository.InvoiceRepository
}

// NewEDIHandler construye el handler.
func NewEDIHandler(dispatcher *appedi.Dispatcher, reconciler *appedi.Reconciler,
	docs repository.DocumentRepository, atts repository.AttachmentRepository,
	invoices repository.InvoiceRepository) *EDIHandler {
	return &EDIHandler{
		dispatcher: dispatcher,
		reconciler: reconciler,
		docs:       docs,
		atts:       atts,
		invoices:   invoices,
	}
}

// ownedInvoice carga la factura y verifica que pertenezca a la empresa del
// token. Una factura ajena se reporta como inexistente.
func (h *EDIHandler) ownedInvoice(c *fiber.Ctx) (*entity.Invoice, error) {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, err := h.invoices.GetByID(c.Context(), id)
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if inv == nil || inv.CompanyID != companyID {
		return nil, c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
	}
	return inv, nil
}

// SendBatch envía un lote de facturas a sus autoridades fiscales.
// POST /api/edi/send
func (h *EDIHandler) SendBatch(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.SendBatchRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if len(in.InvoiceIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice_ids requerido"})
	}
	// Solo facturas de la empresa del token entran al lote; las ajenas se
	// reportan como no encontradas en su outcome.
	ids := make([]string, 0, len(in.InvoiceIDs))
	foreign := map[string]bool{}
	for _, id := range in.InvoiceIDs {
		inv, err := h.invoices.GetByID(c.Context(), id)
		if err == nil && inv != nil && inv.CompanyID == companyID {
			ids = append(ids, id)
			continue
		}
		foreign[id] = true
	}
	report, err := h.dispatcher.SendInvoices(c.Context(), ids)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	for id := range foreign {
		report.Outcomes = append(report.Outcomes, appedi.SendOutcome{
			InvoiceID: id,
			Error:     "factura no encontrada",
		})
	}
	return c.JSON(report)
}

// Send envía una sola factura.
// POST /api/invoices/:id/edi/send
func (h *EDIHandler) Send(c *fiber.Ctx) error {
	inv, err := h.ownedInvoice(c)
	if inv == nil {
		return err
	}
	out, err := h.dispatcher.SendInvoice(c.Context(), inv.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// Correct emite una carta de corrección sobre el documento aceptado.
// POST /api/invoices/:id/edi/correct
func (h *EDIHandler) Correct(c *fiber.Ctx) error {
	inv, err := h.ownedInvoice(c)
	if inv == nil {
		return err
	}
	var in dto.ReasonRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.dispatcher.Correct(c.Context(), inv.ID, in.Reason)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// Cancel solicita la anulación del documento aceptado de la factura.
// POST /api/invoices/:id/edi/cancel
func (h *EDIHandler) Cancel(c *fiber.Ctx) error {
	inv, err := h.ownedInvoice(c)
	if inv == nil {
		return err
	}
	var in dto.ReasonRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.dispatcher.Cancel(c.Context(), inv.ID, in.Reason)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// Status devuelve el estado EDI consolidado de la factura: espejo, historial
// de documentos y metadatos de adjuntos.
// GET /api/invoices/:id/edi
func (h *EDIHandler) Status(c *fiber.Ctx) error {
	inv, err := h.ownedInvoice(c)
	if inv == nil {
		return err
	}
	history, err := h.docs.ListByInvoice(c.Context(), inv.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	attachments, err := h.atts.ListByInvoice(c.Context(), inv.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	resp := dto.InvoiceStatusResponse{
		InvoiceID:    inv.ID,
		Country:      inv.Country,
		EDIStatus:    inv.EDIStatus,
		EDIAccessKey: inv.EDIAccessKey,
		EDIError:     inv.EDIError,
		Cancelled:    inv.Cancelled,
		Documents:    make([]dto.DocumentView, 0, len(history)),
	}
	for _, doc := range history {
		resp.Documents = append(resp.Documents, dto.DocumentView{
			ID:              doc.ID,
			Kind:            string(doc.Kind),
			State:           string(doc.State),
			AccessKey:       doc.AccessKey,
			ParentAccessKey: doc.ParentAccessKey,
			Sequence:        doc.Sequence,
			Ticket:          doc.Ticket,
			Message:         doc.Message,
			AttemptCount:    doc.AttemptCount,
			CreatedAt:       doc.CreatedAt,
			SentAt:          doc.SentAt,
			AcknowledgedAt:  doc.AcknowledgedAt,
		})
	}
	for _, att := range attachments {
		resp.Attachments = append(resp.Attachments, dto.AttachmentView{
			AccessKey: att.AccessKey,
			Name:      att.Name,
			MimeType:  att.MimeType,
			Size:      len(att.Data),
		})
	}
	return c.JSON(resp)
}

// Attachment descarga los bytes de un adjunto por (access_key, name).
// GET /api/edi/attachments/:accessKey/:name
func (h *EDIHandler) Attachment(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	accessKey := c.Params("accessKey")
	name := c.Params("name")
	if accessKey == "" || name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "access_key y name requeridos"})
	}
	att, err := h.atts.Get(c.Context(), accessKey, name)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if att == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "adjunto no encontrado"})
	}
	inv, err := h.invoices.GetByID(c.Context(), att.InvoiceID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if inv == nil || inv.CompanyID != companyID {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "adjunto no encontrado"})
	}
	c.Set(fiber.HeaderContentType, att.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+att.Name+`"`)
	return c.Send(att.Data)
}

// Reconcile dispara una pasada manual del reconciliador: resuelve documentos
// pendientes y descarga la bandeja entrante de todos los países configurados.
// POST /api/edi/reconcile
func (h *EDIHandler) Reconcile(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	h.reconciler.RunOnce(c.Context())
	return c.SendStatus(fiber.StatusAccepted)
}
