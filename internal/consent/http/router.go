package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/service"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
	"github.com/aussiebroadwan/aisconsent/pkg/aissdk"
	"github.com/aussiebroadwan/aisconsent/pkg/httpx"
	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
	"github.com/aussiebroadwan/aisconsent/pkg/slogx"

	_ "github.com/aussiebroadwan/aisconsent/api/consent" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store                store.Store
	ConsentService       *service.ConsentService
	AuthorisationService *service.AuthorisationService
	AccountService       *service.AccountService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerConsents()
	r.registerAuthorisations()
	r.registerAccounts()
	r.registerPsuAPI()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpx.Chain(httpSwagger.Handler(),
		httpx.RateLimitByIP(httpx.PublicLimit),
	))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AIS Consent Service API
//	@version		0.1.0
//	@description	Account information consents in the NextGenPSD2 style: TPPs create consents and read account data under them, the ASPSP's PSU-facing frontend confirms access and drives SCA.
//	@description
//	@description				TPP and ASPSP callers authenticate with EdDSA-signed bearer tokens.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/aisconsent
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// tpp wraps h for TPP callers: bearer token with the ais scope, limited per
// TPP.
func (r *Router) tpp(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(httpx.ScopeAIS),
		httpx.RateLimitByTpp(limit),
	)
}

func (r *Router) registerConsents() {
	h := &ConsentsHandler{ConsentService: r.ConsentService}

	r.Mux.Handle("POST /v1/consents", r.tpp(h.HandleCreate, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/consents/{consentId}", r.tpp(h.HandleGet, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/consents/{consentId}/status", r.tpp(h.HandleStatus, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/consents/{consentId}", r.tpp(h.HandleDelete, httpx.ModerateLimit))
}

func (r *Router) registerAuthorisations() {
	h := &AuthorisationsHandler{AuthorisationService: r.AuthorisationService}

	r.Mux.Handle("POST /v1/consents/{consentId}/authorisations", r.tpp(h.HandleStart, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/consents/{consentId}/authorisations/{authorisationId}", r.tpp(h.HandleStatus, httpx.ModerateLimit))

	// PUT carries PSU passwords and TANs: strict limit per TPP and PSU to
	// stop credential guessing through a single TPP.
	r.Mux.Handle("PUT /v1/consents/{consentId}/authorisations/{authorisationId}",
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(httpx.ScopeAIS),
			httpx.RateLimitByTppAndHeader(httpx.StrictLimit, aissdk.HeaderPsuID),
		),
	)
}

func (r *Router) registerAccounts() {
	accounts := &AccountsHandler{AccountService: r.AccountService}
	cards := &AccountsHandler{AccountService: r.AccountService, Card: true}

	// The consent's daily allowance is the real limit on these reads; the
	// rate limit is per TPP and consent so one consent cannot starve the
	// TPP's others.
	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(httpx.ScopeAIS),
			httpx.RateLimitByTppAndHeader(httpx.LenientLimit, aissdk.HeaderConsentID),
		)
	}

	r.Mux.Handle("GET /v1/accounts", read(accounts.HandleList))
	r.Mux.Handle("GET /v1/accounts/{accountId}", read(accounts.HandleGet))
	r.Mux.Handle("GET /v1/accounts/{accountId}/balances", read(accounts.HandleBalances))
	r.Mux.Handle("GET /v1/accounts/{accountId}/transactions", read(accounts.HandleTransactions))
	r.Mux.Handle("GET /v1/accounts/{accountId}/transactions/{transactionId}", read(accounts.HandleTransactionDetails))
	r.Mux.Handle("GET /v1/accounts/{accountId}/trusted-beneficiaries", read(accounts.HandleTrustedBeneficiaries))

	r.Mux.Handle("GET /v1/card-accounts", read(cards.HandleList))
	r.Mux.Handle("GET /v1/card-accounts/{accountId}", read(cards.HandleGet))
	r.Mux.Handle("GET /v1/card-accounts/{accountId}/balances", read(cards.HandleBalances))
	r.Mux.Handle("GET /v1/card-accounts/{accountId}/transactions", read(cards.HandleTransactions))
}

func (r *Router) registerPsuAPI() {
	h := &PsuAPIHandler{
		ConsentService:       r.ConsentService,
		AuthorisationService: r.AuthorisationService,
	}

	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(httpx.ScopeAspspRead, httpx.ScopeAspspWrite),
			httpx.RateLimitByIP(httpx.StrictLimit),
		)
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(httpx.ScopeAspspWrite),
			httpx.RateLimitByIP(httpx.StrictLimit),
		)
	}

	r.Mux.Handle("GET /psu-api/v1/consents/{consentId}", read(h.HandleGetConsent))
	r.Mux.Handle("PUT /psu-api/v1/consents/{consentId}/account-access", write(h.HandleUpdateAccess))
	r.Mux.Handle("PUT /psu-api/v1/consents/{consentId}/authorisations/{authorisationId}/status/{status}", write(h.HandleUpdateScaStatus))
	r.Mux.Handle("PUT /psu-api/v1/consents/{consentId}/revoke", write(h.HandleRevoke))
	r.Mux.Handle("GET /psu-api/v1/redirects/{encryptedConsentId}/{redirectId}", read(h.HandleResolveRedirect))
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
