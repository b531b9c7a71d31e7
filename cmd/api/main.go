package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shilpkart/api/internal/handlers"
	"github.com/shilpkart/api/internal/payments"
	"github.com/shilpkart/api/internal/platform/assethost"
	"github.com/shilpkart/api/internal/platform/auth"
	"github.com/shilpkart/api/internal/platform/config"
	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/platform/jobs"
	"github.com/shilpkart/api/internal/platform/observability"
	"github.com/shilpkart/api/internal/platform/secrets"
	platformstorage "github.com/shilpkart/api/internal/platform/storage"
	firestoreRepo "github.com/shilpkart/api/internal/repositories/firestore"
	"github.com/shilpkart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	archiver, err := platformstorage.NewArchiver(storageClient, cfg.Storage.ArchiveBucket)
	if err != nil {
		logger.Fatal("failed to initialise artwork archiver", zap.Error(err))
	}

	var signedURLClient *platformstorage.Client
	if signerKey := strings.TrimSpace(cfg.Storage.SignerKey); signerKey != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
		if err != nil {
			logger.Fatal("failed to parse storage signer key", zap.Error(err))
		}
		signedURLClient, err = platformstorage.NewClient(signer)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
	} else {
		logger.Info("storage signer key not configured; invoice downloads disabled")
	}

	var eventsPublisher services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.Events.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicName)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		eventsPublisher = publisher
	} else {
		logger.Info("order events topic not configured; event publishing disabled")
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:      registry.Inventory(),
		ReservationTTL: cfg.Checkout.ReservationTTL,
		Clock:          time.Now,
		Logger:         zapEventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	pricingEngine, err := services.NewPricingEngine(services.PricingEngineDeps{
		FreeShippingMin: services.Money(cfg.Checkout.FreeShippingMin),
		FlatShipping:    services.Money(cfg.Checkout.ShippingFlat),
		Logger:          zapEventLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	uploadService, err := services.NewUploadService(services.UploadServiceDeps{
		Client: assethost.NewClient(cfg.AssetHost),
		Folder: "customizations",
		Logger: zapEventLogger(logger.Named("uploads")),
	})
	if err != nil {
		logger.Fatal("failed to initialise upload service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    registry.Orders(),
		Customers: registry.Customers(),
		Catalog:   registry.Catalog(),
		Counters:  registry.Counters(),
		Inventory: inventoryService,
		Uploads:   uploadService,
		Pricing:   pricingEngine,
		Events:    eventsPublisher,
		Archive:   archiver,
		Clock:     time.Now,
		Logger:    zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:   registry.Carts(),
		Catalog: registry.Catalog(),
		Clock:   time.Now,
		Logger:  zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: registry.Catalog(),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	paymentManager, err := buildPaymentManager(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       registry.Carts(),
		Catalog:     registry.Catalog(),
		Inventory:   inventoryService,
		Orders:      orderService,
		Store:       registry.Orders(),
		Gateway:     paymentManager,
		Events:      eventsPublisher,
		Clock:       time.Now,
		Logger:      zapEventLogger(logger.Named("checkout")),
		AllowCOD:    cfg.Features.EnableCOD,
		AllowStripe: cfg.Features.EnableStripe,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	reconciler, err := jobs.NewReconciler(jobs.ReconcilerDeps{
		Orders:    registry.Orders(),
		Stock:     registry.Inventory(),
		Inventory: inventoryService,
		Events:    eventsPublisher,
		Config:    cfg.Reconciler,
		Clock:     time.Now,
		Logger:    zapEventLogger(logger.Named("reconciler")),
	})
	if err != nil {
		logger.Fatal("failed to initialise reconciler", zap.Error(err))
	}

	catalogHandlers, err := handlers.NewCatalogHandlers(catalogService)
	if err != nil {
		logger.Fatal("failed to initialise catalog handlers", zap.Error(err))
	}
	cartHandlers, err := handlers.NewCartHandlers(cartService)
	if err != nil {
		logger.Fatal("failed to initialise cart handlers", zap.Error(err))
	}
	checkoutHandlers, err := handlers.NewCheckoutHandlers(handlers.CheckoutHandlersDeps{
		Checkout:       checkoutService,
		CheckoutLimit:  cfg.RateLimits.AuthenticatedPerMinute,
		CheckoutWindow: time.Minute,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout handlers", zap.Error(err))
	}
	orderHandlers, err := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Orders:        orderService,
		InvoiceSigner: signedURLClient,
		InvoiceBucket: cfg.Storage.ArchiveBucket,
	})
	if err != nil {
		logger.Fatal("failed to initialise order handlers", zap.Error(err))
	}
	internalHandlers, err := handlers.NewInternalHandlers(reconciler)
	if err != nil {
		logger.Fatal("failed to initialise internal handlers", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthProbe("firestore", firestoreProbe(firestoreClient)),
		handlers.WithHealthProbe("secretManager", secretManagerProbe(fetcher)),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(catalogHandlers.Register),
		handlers.WithCartRoutes(cartHandlers.Register),
		handlers.WithCheckoutRoutes(checkoutHandlers.Register),
		handlers.WithPaymentRoutes(checkoutHandlers.RegisterPayments),
		handlers.WithOrderRoutes(orderHandlers.Register),
		handlers.WithInternalRoutes(internalHandlers.Register),
		handlers.WithAuthedMiddlewares(authenticator.RequireFirebaseAuth()),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg); hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	jobCtx, jobCancel := context.WithCancel(context.Background())
	var jobWG sync.WaitGroup
	if cfg.Features.EnableReconciler {
		jobWG.Add(1)
		go func() {
			defer jobWG.Done()
			if err := reconciler.Run(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reconciler stopped", zap.Error(err))
			}
		}()
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("shilpkart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	jobCancel()
	jobWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// zapEventLogger adapts a zap logger to the event-map logging signature the
// services take as a dependency.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}

func buildPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 3)

	razorpay, err := payments.NewRazorpayProvider(cfg.PSP.Razorpay)
	if err != nil {
		return nil, fmt.Errorf("razorpay: %w", err)
	}
	providers["razorpay"] = razorpay

	if strings.TrimSpace(cfg.PSP.PhonePe.MerchantID) != "" {
		phonepe, err := payments.NewPhonePeProvider(cfg.PSP.PhonePe)
		if err != nil {
			return nil, fmt.Errorf("phonepe: %w", err)
		}
		providers["phonepe"] = phonepe
	}

	if cfg.Features.EnableStripe {
		if strings.TrimSpace(cfg.PSP.Stripe.APIKey) == "" {
			return nil, errors.New("stripe enabled but api key is not configured")
		}
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.Stripe.APIKey,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				logger.Debug("stripe log", zFields...)
			},
			Clock: time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		providers["stripe"] = stripeProvider
	}

	return payments.NewManager(providers, payments.WithCurrencyRoutes(map[string]string{
		"INR": "razorpay",
	}))
}

func firestoreProbe(client *firestore.Client) handlers.ReadinessProbe {
	return func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		iter := client.Collections(probeCtx)
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

func secretManagerProbe(fetcher *secrets.Fetcher) handlers.ReadinessProbe {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, err := fetcher.Resolve(probeCtx, secretHealthReference)
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secretValues := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretValues[strings.ToLower(key)] = value
	}
	if cfg.Webhooks.SigningSecret != "" {
		if _, ok := secretValues["default"]; !ok {
			secretValues["default"] = cfg.Webhooks.SigningSecret
		}
	}
	if len(secretValues) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: secretValues}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	resolver := webhookSecretResolver(secretValues)
	return validator.RequireHMACResolver(resolver)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

func webhookSecretResolver(secrets map[string]string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		path := r.URL.Path
		if idx := strings.Index(path, "/webhooks/"); idx >= 0 {
			path = path[idx+len("/webhooks/"):]
		}
		path = strings.Trim(path, "/")
		if path == "" {
			if secret, ok := secrets["default"]; ok && secret != "" {
				return "default", true
			}
			return "", false
		}

		segments := strings.Split(path, "/")
		candidates := make([]string, 0, 3)
		if len(segments) >= 2 {
			candidates = append(candidates, strings.ToLower(strings.Join(segments[:2], "/")))
		}
		if len(segments) >= 1 {
			candidates = append(candidates, strings.ToLower(segments[0]))
		}
		candidates = append(candidates, "default")

		for _, candidate := range candidates {
			if secret, ok := secrets[candidate]; ok && secret != "" {
				return candidate, true
			}
		}
		return "", false
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames maps the env vars that carry secret references to the
// config field names the loader records, so deployments fail fast when a
// referenced secret cannot be resolved.
func requiredSecretNames(env map[string]string) []string {
	refFields := map[string]string{
		"API_PSP_RAZORPAY_KEY_SECRET":     "PSP.Razorpay.KeySecret",
		"API_PSP_RAZORPAY_WEBHOOK_SECRET": "PSP.Razorpay.WebhookSecret",
		"API_PSP_PHONEPE_SALT_KEY":        "PSP.PhonePe.SaltKey",
		"API_PSP_STRIPE_API_KEY":          "PSP.Stripe.APIKey",
		"API_PSP_STRIPE_WEBHOOK_SECRET":   "PSP.Stripe.WebhookSecret",
		"API_STORAGE_SIGNER_KEY":          "Storage.SignerKey",
		"API_ASSETHOST_API_KEY":           "AssetHost.APIKey",
		"API_WEBHOOK_SIGNING_SECRET":      "Webhooks.SigningSecret",
	}

	var required []string
	hmacRaw := ""
	if env != nil {
		hmacRaw = strings.TrimSpace(env["API_SECURITY_HMAC_SECRETS"])
		for key, field := range refFields {
			value := strings.TrimSpace(env[key])
			if strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://") {
				required = append(required, field)
			}
		}
	}
	for _, key := range parseHMACSecretKeys(hmacRaw) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
