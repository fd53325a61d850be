package relay

import (
	"net/http"

	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/logging"
	"github.com/teemow/decap-oauth/internal/provider"
	"github.com/teemow/decap-oauth/internal/state"
)

// authorizeResult is the outcome of a valid authorize request.
type authorizeResult struct {
	Provider    string
	Scope       string
	Host        string
	RedirectURI string
	State       string
	Location    string
}

// ServeAuth handles GET /auth by redirecting to the provider consent page.
// It performs no network I/O.
func (h *Handler) ServeAuth(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartRelaySpan(r.Context(), instrumentation.OperationAuthorize)
	defer span.End()

	logger := logging.WithTraceID(logging.WithOperation(h.logger, instrumentation.OperationAuthorize), instrumentation.TraceID(ctx))
	ev := instrumentation.NewAuthEvent(instrumentation.OperationAuthorize).
		WithSpanContext(ctx).
		WithStateSigned(h.signer != nil)

	res, reqErr := h.authorize(r)
	ev.WithRequest(res.Provider, res.Host, h.clientIP(r)).WithScope(res.Scope)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithProvider(res.Provider).
		WithHost(res.Host).
		WithScope(res.Scope).
		WithStateSigned(h.signer != nil).
		Build()...)
	providerLabel := instrumentation.ProviderLabel(res.Provider, h.knownProviders())

	if reqErr != nil {
		h.logRequestError(logging.WithProvider(logger, providerLabel), reqErr)
		h.writeError(w, reqErr)
		h.metrics.RecordAuthorize(ctx, providerLabel, instrumentation.OAuthResultRejected, res.Host)
		instrumentation.SetSpanResult(span, instrumentation.OAuthResultRejected)
		instrumentation.SetSpanError(span, reqErr)
		h.audit.LogAuthEvent(ev.Complete(instrumentation.OAuthResultRejected, reqErr.Status, reqErr))
		return
	}

	logger.Debug("redirecting to provider",
		logging.Provider(res.Provider),
		logging.Host(res.Host),
		logging.StateHash(res.State),
	)

	setNoStore(w)
	http.Redirect(w, r, res.Location, http.StatusFound)

	h.metrics.RecordAuthorize(ctx, providerLabel, instrumentation.OAuthResultRedirected, res.Host)
	instrumentation.SetSpanResult(span, instrumentation.OAuthResultRedirected)
	instrumentation.SetSpanSuccess(span)
	h.audit.LogAuthEvent(ev.Complete(instrumentation.OAuthResultRedirected, http.StatusFound, nil))
}

// authorize validates the request and computes the provider redirect.
// The returned result is partially filled on error so callers can log it.
func (h *Handler) authorize(r *http.Request) (authorizeResult, *RequestError) {
	var res authorizeResult

	name, reqErr := h.resolveProvider(r)
	res.Provider = name
	if reqErr != nil {
		return res, reqErr
	}

	res.Scope = r.URL.Query().Get("scope")
	if res.Scope == "" {
		res.Scope = h.cfg.DefaultScope
	}

	host, reqErr := requestHost(r)
	if reqErr != nil {
		return res, reqErr
	}
	res.Host = host
	res.RedirectURI = CallbackURL(host, name)

	d, err := provider.Build(h.cfg, res.RedirectURI)
	if err != nil {
		return res, ErrInternal(err)
	}
	d.ProviderName = name

	if h.signer != nil {
		res.State, err = h.signer.Issue(name, res.RedirectURI)
	} else {
		res.State, err = state.Random()
	}
	if err != nil {
		return res, ErrInternal(err)
	}

	res.Location = h.providers.Resolve(name).AuthorizeURL(d, res.Scope, res.State)
	return res, nil
}
