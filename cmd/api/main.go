package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	_ "github.com/jhoicas/edi-gateway/docs"
	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/countries"
	infrapdf "github.com/jhoicas/edi-gateway/internal/infrastructure/pdf"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/postgres"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/qr"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/webservice"
	httpRouter "github.com/jhoicas/edi-gateway/internal/interfaces/http"
	"github.com/jhoicas/edi-gateway/pkg/config"
	"github.com/jhoicas/edi-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	// ctx gobierna el reconciliador de fondo; se cancela en el apagado.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	documentRepo := postgres.NewDocumentRepository(pool)
	attachmentRepo := postgres.NewAttachmentRepository(pool)
	credentialRepo := postgres.NewCredentialRepository(pool)
	stateCodeRepo := postgres.NewStateCodeRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	registry := countries.NewRegistry()
	log.Info().Strs("countries", registry.Countries()).Msg("adaptadores de país registrados")

	wsClient := webservice.New(webservice.Config{
		Timeout:        cfg.EDI.Timeout,
		AttemptTimeout: cfg.EDI.AttemptTimeout,
		MaxRetries:     cfg.EDI.MaxRetries,
		PollInterval:   cfg.EDI.PollInterval,
	}, log.Component("webservice"))

	dispatcher := appedi.NewDispatcher(appedi.DispatcherDeps{
		Registry:  registry,
		Client:    wsClient,
		Tx:        txRunner,
		Documents: documentRepo,
		Creds:     credentialRepo,
		Invoices:  invoiceRepo,
		Companies: companyRepo,
		Customers: customerRepo,
		States:    stateCodeRepo,
		PDF:       infrapdf.NewMarotoGenerator(),
		QR:        qr.New(),
		Logger:    log,
	})

	// Reconciliador periódico: resuelve documentos en sent/cancel_requested y
	// descarga la bandeja entrante de KE/IN.
	reconciler := appedi.NewReconciler(dispatcher, cfg.EDI.ReconcileEvery, cfg.EDI.ReconcileBatch)
	go reconciler.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "EDI Gateway API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Dispatcher:  dispatcher,
		Reconciler:  reconciler,
		Registry:    registry,
		Documents:   documentRepo,
		Attachments: attachmentRepo,
		Invoices:    invoiceRepo,
		Credentials: credentialRepo,
		JWTSecret:   cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
