// Package webservice implementa el cliente HTTP hacia los WS de las
// autoridades tributarias y PACs. Los reintentos, el presupuesto de tiempo y
// el flujo de tres patas (envío + consulta) viven aquí; el código de negocio
// solo ve el puerto Client y errores tipados.
package webservice

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	appedi "github.com/jhoicas/edi-gateway/internal/application/edi"
	"github.com/jhoicas/edi-gateway/internal/domain/entity"
	"github.com/jhoicas/edi-gateway/internal/infrastructure/signer"
	pkgedi "github.com/jhoicas/edi-gateway/pkg/edi"
	"github.com/jhoicas/edi-gateway/pkg/logger"
)

const maxResponseBytes = 4 << 20 // 4 MB; los CDR y acuses caben de sobra

// Config parámetros de red del cliente.
type Config struct {
	// Timeout es el presupuesto total por entrega, incluida la consulta de la
	// segunda pata. Agotarlo produce un error de clase timeout.
	Timeout time.Duration
	// AttemptTimeout limita cada intento HTTP individual.
	AttemptTimeout time.Duration
	// MaxRetries reintentos por fallo transitorio de transporte.
	MaxRetries int
	// PollInterval intervalo inicial de la consulta de estado tras un envío
	// asíncrono; crece exponencialmente hasta agotar el presupuesto.
	PollInterval time.Duration
}

// withDefaults completa los parámetros no configurados.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// HTTPClient implementa el puerto Client sobre go-retryablehttp.
type HTTPClient struct {
	cfg Config
	log *logger.Logger
}

var _ appedi.Client = (*HTTPClient)(nil)

// New construye el cliente con la configuración dada.
func New(cfg Config, log *logger.Logger) *HTTPClient {
	return &HTTPClient{cfg: cfg.withDefaults(), log: log}
}

// ── Envío ────────────────────────────────────────────────────────────────────

// Send entrega el sobre bajo el presupuesto de tiempo configurado. Si el país
// usa flujo asíncrono y queda presupuesto, consulta el estado hasta obtener la
// decisión o agotar el tiempo; en ese caso devuelve la respuesta del envío
// (OK, no autoritativa) y el reconciliador termina el trabajo.
func (c *HTTPClient) Send(ctx context.Context, adapter *appedi.Adapter, env *appedi.Envelope,
	creds *entity.CredentialSet) (*pkgedi.Response, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url, err := adapter.EndpointFor(creds, "submit")
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, adapter, creds, url, env)
	if err != nil {
		return nil, err
	}

	if resp.Authoritative || !env.NeedsPoll || adapter.BuildStatusQuery == nil {
		return resp, nil
	}
	return c.pollForDecision(ctx, adapter, creds, env, resp)
}

// pollForDecision ejecuta la segunda pata con backoff exponencial hasta que la
// autoridad decida o el contexto expire. Expirar no es un error: el documento
// queda en vuelo con su ticket.
func (c *HTTPClient) pollForDecision(ctx context.Context, adapter *appedi.Adapter,
	creds *entity.CredentialSet, env *appedi.Envelope, submitted *pkgedi.Response) (*pkgedi.Response, error) {

	probe := &entity.Document{
		Country:   adapter.Country,
		AccessKey: submitted.AccessKey,
		Ticket:    submitted.Ticket,
	}
	if probe.AccessKey == "" {
		probe.AccessKey = env.AccessKey
	}

	queryEnv, err := adapter.BuildStatusQuery(probe, creds)
	if err != nil {
		return nil, err
	}
	url, err := adapter.EndpointFor(creds, "query")
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.PollInterval
	bo.MaxElapsedTime = 0 // el límite lo pone el contexto

	var decided *pkgedi.Response
	err = backoff.Retry(func() error {
		resp, qerr := c.post(ctx, adapter, creds, url, queryEnv)
		if qerr != nil {
			// Autenticación y negocio son permanentes; el resto se reintenta.
			switch pkgedi.KindOf(qerr) {
			case pkgedi.ErrKindAuthentication, pkgedi.ErrKindBusiness:
				return backoff.Permanent(qerr)
			}
			return qerr
		}
		if !resp.Authoritative {
			return fmt.Errorf("la autoridad aún no decide (código %s)", resp.Code)
		}
		decided = resp
		return nil
	}, backoff.WithContext(bo, ctx))

	if decided != nil {
		return decided, nil
	}
	if err != nil && ctx.Err() == nil {
		if kind := pkgedi.KindOf(err); kind == pkgedi.ErrKindAuthentication || kind == pkgedi.ErrKindBusiness {
			return nil, err
		}
	}
	// Presupuesto agotado sin decisión: se devuelve el acuse del envío.
	return submitted, nil
}

// Query ejecuta una consulta de estado puntual, sin reintentos de espera.
func (c *HTTPClient) Query(ctx context.Context, adapter *appedi.Adapter, env *appedi.Envelope,
	creds *entity.CredentialSet) (*pkgedi.Response, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url, err := adapter.EndpointFor(creds, "query")
	if err != nil {
		return nil, err
	}
	return c.post(ctx, adapter, creds, url, env)
}

// Fetch descarga el buzón entrante y devuelve el cuerpo crudo; el adaptador
// del país lo decodifica.
func (c *HTTPClient) Fetch(ctx context.Context, adapter *appedi.Adapter,
	creds *entity.CredentialSet, op string) ([]byte, error) {

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url, err := adapter.EndpointFor(creds, op)
	if err != nil {
		return nil, err
	}

	httpc, err := c.newRetryable(adapter, creds)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration, "petición inválida", err)
	}
	c.applyAuth(req, adapter, creds)

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication,
			fmt.Sprintf("HTTP %d", resp.StatusCode), "el WS rechazó las credenciales")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "leyendo el buzón entrante", err)
	}
	return body, nil
}

// ── Plomería HTTP ────────────────────────────────────────────────────────────

// post entrega el sobre y decodifica la respuesta con el adaptador del país.
func (c *HTTPClient) post(ctx context.Context, adapter *appedi.Adapter,
	creds *entity.CredentialSet, url string, env *appedi.Envelope) (*pkgedi.Response, error) {

	httpc, err := c.newRetryable(adapter, creds)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(env.Payload))
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration, "petición inválida", err)
	}
	req.Header.Set("Content-Type", env.ContentType)
	c.applyAuth(req, adapter, creds)

	start := time.Now()
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pkgedi.WrapError(pkgedi.ErrKindTransport, "leyendo la respuesta", err)
	}
	c.log.Debug().Str("country", adapter.Country).Str("url", url).
		Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).
		Msg("respuesta del WS")

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, pkgedi.NewError(pkgedi.ErrKindAuthentication,
			fmt.Sprintf("HTTP %d", resp.StatusCode), "el WS rechazó las credenciales")
	}

	if adapter.VerifyResponse == nil {
		return nil, pkgedi.NewError(pkgedi.ErrKindConfiguration, "",
			fmt.Sprintf("el adaptador %s no decodifica respuestas", adapter.Country))
	}
	decoded, err := adapter.VerifyResponse(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	if decoded.Raw == nil {
		decoded.Raw = body
	}
	return decoded, nil
}

// newRetryable arma el cliente con reintentos y, si el país lo exige, el
// transporte mTLS con el certificado del emisor.
func (c *HTTPClient) newRetryable(adapter *appedi.Adapter, creds *entity.CredentialSet) (*retryablehttp.Client, error) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = c.cfg.MaxRetries
	rc.Logger = nil
	rc.HTTPClient.Timeout = c.cfg.AttemptTimeout

	if adapter.Auth == appedi.AuthMTLS {
		cert, err := signer.LoadCertificate(creds.CertData, creds.CertPassword)
		if err != nil {
			return nil, pkgedi.WrapError(pkgedi.ErrKindConfiguration,
				"no se pudo cargar el certificado mTLS", err)
		}
		rc.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	}
	return rc, nil
}

// applyAuth agrega la autenticación de transporte. El WS-Security UsernameToken
// va dentro del sobre SOAP y lo arma el adaptador, no el cliente.
func (c *HTTPClient) applyAuth(req *retryablehttp.Request, adapter *appedi.Adapter,
	creds *entity.CredentialSet) {

	switch adapter.Auth {
	case appedi.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	case appedi.AuthBasic:
		req.SetBasicAuth(creds.Username, creds.Password)
	}
}

// classifyTransport separa el agotamiento del presupuesto del fallo de red.
func (c *HTTPClient) classifyTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgedi.WrapError(pkgedi.ErrKindTimeout,
			fmt.Sprintf("presupuesto de %s agotado", c.cfg.Timeout), err)
	}
	return pkgedi.WrapError(pkgedi.ErrKindTransport,
		fmt.Sprintf("fallo de red tras %d reintentos", c.cfg.MaxRetries), err)
}
