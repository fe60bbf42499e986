package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/adapter/binance"
	"github.com/yourorg/payment-core/internal/adapter/moneygram"
	"github.com/yourorg/payment-core/internal/adapter/paypal"
	"github.com/yourorg/payment-core/internal/adapter/paystack"
	"github.com/yourorg/payment-core/internal/adapter/xendit"
	"github.com/yourorg/payment-core/internal/audit"
	"github.com/yourorg/payment-core/internal/circuitbreaker"
	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/ledger"
	"github.com/yourorg/payment-core/internal/metrics"
	"github.com/yourorg/payment-core/internal/money"
	"github.com/yourorg/payment-core/internal/monitor"
	"github.com/yourorg/payment-core/internal/orchestrator"
	"github.com/yourorg/payment-core/internal/policy"
	"github.com/yourorg/payment-core/internal/store"
	"github.com/yourorg/payment-core/internal/transaction"
	"github.com/yourorg/payment-core/internal/webhook"
)

type server struct {
	orch     *orchestrator.Orchestrator
	contract *monitor.ContractMonitor
	auditLog *audit.Log
	promReg  *prometheus.Registry
}

func newServer(cfg config.Config, kv store.KV, rates money.RateLookup) (*server, error) {
	registry := adapter.Registry{
		domain.ProviderXendit:    xendit.NewAdapter(nil, cfg.Providers[domain.ProviderXendit]),
		domain.ProviderPaystack:  paystack.NewAdapter(nil, cfg.Providers[domain.ProviderPaystack]),
		domain.ProviderMoneyGram: moneygram.NewAdapter(nil, cfg.Providers[domain.ProviderMoneyGram]),
		domain.ProviderBinance:   binance.NewAdapter(nil, cfg.Providers[domain.ProviderBinance]),
	}
	pp, err := paypal.NewAdapter(nil, cfg.Providers[domain.ProviderPayPal])
	if err != nil {
		return nil, err
	}
	registry[domain.ProviderPayPal] = pp

	verifiers := map[domain.Provider]webhook.Verifier{
		domain.ProviderXendit:   webhook.XenditVerifier{Token: cfg.Providers[domain.ProviderXendit].WebhookSecret},
		domain.ProviderPaystack: webhook.PaystackVerifier{Secret: cfg.Providers[domain.ProviderPaystack].WebhookSecret},
		domain.ProviderBinance:  webhook.BinanceVerifier{Secret: cfg.Providers[domain.ProviderBinance].WebhookSecret},
	}
	return buildServer(cfg, kv, rates, registry, verifiers)
}

func buildServer(cfg config.Config, kv store.KV, rates money.RateLookup, registry adapter.Registry, verifiers map[domain.Provider]webhook.Verifier) (*server, error) {
	repo := transaction.NewRepository(kv)
	auditLog := audit.NewLog(0)
	dispatcher := webhook.NewDispatcher(verifiers, repo, kv, auditLog, cfg.WebhookRetryAttempts, cfg.WebhookRetryDelay)

	enforcer, err := policy.NewEnforcer(policy.DefaultRules)
	if err != nil {
		return nil, err
	}
	contract, err := monitor.NewContractMonitor()
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	orch := orchestrator.New(
		registry,
		money.NewNormalizer(rates),
		repo,
		ledger.NewLedger(kv),
		circuitbreaker.New(),
		enforcer,
		dispatcher,
		metrics.New(promReg),
		auditLog,
		orchestrator.Config{
			MaxAttempts: cfg.InitiateMaxAttempts,
			Backoff:     cfg.InitiateBackoff,
			SettlementCurrencies: map[domain.Provider]string{
				domain.ProviderBinance: "USDT",
			},
		},
	)
	return &server{orch: orch, contract: contract, auditLog: auditLog, promReg: promReg}, nil
}

func (s *server) routes() *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("payment-core"))

	r.POST("/payments", s.createPayment)
	r.GET("/payments/:id", s.getPayment)
	r.POST("/payments/:id/refresh", s.refreshPayment)
	r.POST("/payments/:id/capture", s.capturePayment)
	r.POST("/payments/:id/cancel", s.cancelPayment)
	r.POST("/webhooks/:provider", s.handleWebhook)

	r.GET("/audit/report", s.auditReport)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})))
	return r
}

func (s *server) createPayment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body"})
		return
	}

	valid, violations, err := s.contract.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request is not valid JSON"})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return
	}

	var intent domain.PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
		return
	}

	res, err := s.orch.CreatePayment(c.Request.Context(), intent)
	if errors.Is(err, domain.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{
			"error":       "external reference already used",
			"transaction": res.Transaction,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": res.Transaction, "action": res.Action})
}

func (s *server) getPayment(c *gin.Context) {
	tx, err := s.orch.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (s *server) refreshPayment(c *gin.Context) {
	tx, err := s.orch.PollStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (s *server) capturePayment(c *gin.Context) {
	tx, err := s.orch.Capture(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (s *server) cancelPayment(c *gin.Context) {
	tx, err := s.orch.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (s *server) handleWebhook(c *gin.Context) {
	provider, ok := domain.ParseProvider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body"})
		return
	}

	err = s.orch.HandleWebhook(c.Request.Context(), provider, c.Request.Header, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, domain.ErrSignatureInvalid), errors.Is(err, domain.ErrUnknownTransaction):
		// Rejected and unmatched events are acknowledged all the same;
		// the audit trail carries them, not the provider's retry queue.
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, domain.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
	}
}

func (s *server) auditReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.auditLog.Summarize())
}

func respondError(c *gin.Context, err error) {
	var rejected *domain.ProviderRejectedError
	switch {
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        "provider rejected the payment",
			"providerCode": rejected.Code,
			"provider":     string(rejected.Provider),
		})
	case errors.Is(err, domain.ErrValidationFailed),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrRateUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnknownTransaction):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, domain.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider unavailable, try again later"})
	default:
		log.Printf("server: unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func initTracing() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

func main() {
	cfg := config.FromEnv()

	tp, err := initTracing()
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("server: tracer shutdown: %v", err)
		}
	}()

	var kv store.KV = store.NewMemoryStore()
	if cfg.RedisAddr != "" {
		kv = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		log.Printf("server: using redis store at %s", cfg.RedisAddr)
	}

	// Rates come from an external service in production; none is wired in
	// by default, so cross-currency intents fail with RateUnavailable.
	srv, err := newServer(cfg, kv, nil)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	log.Printf("server: listening on %s", cfg.ListenAddr)
	if err := srv.routes().Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
