package http

import (
	"github.com/gofiber/fiber/v2"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Dispatcher  *appedi.Dispatcher
	Reconciler  *appedi.Reconciler
	Registry    appedi.Registry
	Documents   repository.DocumentRepository
	Attachments repository.AttachmentRepository
	Invoices    repository.InvoiceRepository
	Credentials repository.CredentialRepository
	JWTSecret   string
}

// Router registra las rutas de la API. Toda la superficie exige el Bearer
// Token del anfitrión; no hay rutas públicas.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Pipeline EDI (protegido)
	ediHandler := NewEDIHandler(deps.Dispatcher, deps.Reconciler,
		deps.Documents, deps.Attachments, deps.Invoices)
	ediGroup := protected.Group("/edi")
	ediGroup.Post("/send", ediHandler.SendBatch)
	ediGroup.Post("/reconcile", ediHandler.Reconcile)
	ediGroup.Get("/attachments/:accessKey/:name", ediHandler.Attachment)

	// Operaciones por factura (protegido)
	invoices := protected.Group("/invoices")
	invoices.Post("/:id/edi/send", ediHandler.Send)
	invoices.Post("/:id/edi/correct", ediHandler.Correct)
	invoices.Post("/:id/edi/cancel", ediHandler.Cancel)
	invoices.Get("/:id/edi", ediHandler.Status)

	// Credenciales por país (protegido)
	// Solo admin puede leer o mutar credenciales.
	credHandler := NewCredentialHandler(deps.Credentials, deps.Registry)
	credGroup := protected.Group("/edi/credentials", RequireRole("admin"))
	credGroup.Get("/", credHandler.List)
	credGroup.Put("/:country", credHandler.Upsert)
	credGroup.Delete("/:country", credHandler.Delete)
}
