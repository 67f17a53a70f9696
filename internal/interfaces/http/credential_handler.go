package http

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jhoicas/edi-gateway/internal/application/dto"
	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/domain/repository"
)

// CredentialHandler maneja la configuración por (empresa, país): ambiente,
// endpoints y material de autenticación (protegido). Los secretos nunca se
// devuelven; las lecturas entregan solo el resumen.
type CredentialHandler struct {
	creds    repository.CredentialRepository
	registry appedi.Registry
}

// NewCredentialHandler construye el handler.
func NewCredentialHandler(creds repository.CredentialRepository, registry appedi.Registry) *CredentialHandler {
	return &CredentialHandler{creds: creds, registry: registry}
}

// Upsert crea o reemplaza el CredentialSet del país para la empresa del token.
// PUT /api/edi/credentials/:country
func (h *CredentialHandler) Upsert(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	country := strings.ToUpper(c.Params("country"))
	if _, ok := h.registry.Lookup(country); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "UNSUPPORTED_COUNTRY", Message: "país no soportado: " + country})
	}
	var in dto.CredentialRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	env := in.Environment
	if env == "" {
		env = entity.EnvironmentTest
	}
	if env != entity.EnvironmentProd && env != entity.EnvironmentTest && env != entity.EnvironmentDemo {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "environment debe ser prod, test o demo"})
	}
	if in.TaxpayerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "taxpayer_id requerido"})
	}
	var certData []byte
	if in.CertData != "" {
		decoded, err := base64.StdEncoding.DecodeString(in.CertData)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cert_data no es Base64 válido"})
		}
		certData = decoded
	}

	set := &entity.CredentialSet{
		ID:           uuid.New().String(),
		CompanyID:    companyID,
		Country:      country,
		Environment:  env,
		Endpoints:    in.Endpoints,
		TaxpayerID:   in.TaxpayerID,
		Username:     in.Username,
		Password:     in.Password,
		Token:        in.Token,
		LEI:          in.LEI,
		CertData:     certData,
		CertPassword: in.CertPassword,
	}
	if err := h.creds.Upsert(c.Context(), set); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(summarize(set))
}

// List devuelve el resumen (sin secretos) de los países configurados.
// GET /api/edi/credentials
func (h *CredentialHandler) List(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	sets, err := h.creds.ListByCompany(c.Context(), companyID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.CredentialSummary, 0, len(sets))
	for _, s := range sets {
		out = append(out, summarize(s))
	}
	return c.JSON(out)
}

// Delete elimina el CredentialSet del país. La empresa deja de ser elegible
// para emitir en ese país.
// DELETE /api/edi/credentials/:country
func (h *CredentialHandler) Delete(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	country := strings.ToUpper(c.Params("country"))
	if country == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "country requerido"})
	}
	if err := h.creds.Delete(c.Context(), companyID, country); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "no hay configuración para " + country})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func summarize(s *entity.CredentialSet) dto.CredentialSummary {
	return dto.CredentialSummary{
		Country:        s.Country,
		Environment:    s.Environment,
		TaxpayerID:     s.TaxpayerID,
		HasCertificate: len(s.CertData) > 0,
		HasUserPass:    s.Username != "" && s.Password != "",
		HasToken:       s.Token != "",
		UpdatedAt:      s.UpdatedAt,
	}
}
