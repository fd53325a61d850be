package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/logging"
	"github.com/teemow/decap-oauth/internal/messaging"
	"github.com/teemow/decap-oauth/internal/provider"
)

// callbackResult is the outcome of a callback request.
type callbackResult struct {
	Provider string
	Host     string
	// Result is one of the instrumentation OAuth result values
	Result string
	Page   []byte
}

// ServeCallback handles GET /callback: it exchanges the authorization code and
// renders the messaging page.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartRelaySpan(r.Context(), instrumentation.OperationCallback)
	defer span.End()

	logger := logging.WithTraceID(logging.WithOperation(h.logger, instrumentation.OperationCallback), instrumentation.TraceID(ctx))
	ev := instrumentation.NewAuthEvent(instrumentation.OperationCallback).
		WithSpanContext(ctx).
		WithStateSigned(h.signer != nil)

	res, reqErr := h.callback(ctx, r)
	ev.WithRequest(res.Provider, res.Host, h.clientIP(r))
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithProvider(res.Provider).
		WithHost(res.Host).
		WithStateSigned(h.signer != nil).
		Build()...)
	providerLabel := instrumentation.ProviderLabel(res.Provider, h.knownProviders())

	if reqErr != nil {
		h.logRequestError(logging.WithProvider(logger, providerLabel), reqErr)
		h.writeError(w, reqErr)
		h.metrics.RecordCallback(ctx, providerLabel, res.Result, res.Host)
		instrumentation.SetSpanResult(span, res.Result)
		instrumentation.SetSpanError(span, reqErr)
		h.audit.LogAuthEvent(ev.Complete(res.Result, reqErr.Status, reqErr))
		return
	}

	setNoStore(w)
	w.Header().Set("Content-Type", messaging.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Page); err != nil {
		logger.Debug("failed to write messaging page", logging.Err(err))
	}

	h.metrics.RecordCallback(ctx, providerLabel, instrumentation.OAuthResultSuccess, res.Host)
	instrumentation.SetSpanResult(span, instrumentation.OAuthResultSuccess)
	instrumentation.SetSpanSuccess(span)
	h.audit.LogAuthEvent(ev.Complete(instrumentation.OAuthResultSuccess, http.StatusOK, nil))
}

// callback validates the request, performs the exchange and renders the page.
func (h *Handler) callback(ctx context.Context, r *http.Request) (callbackResult, *RequestError) {
	res := callbackResult{Result: instrumentation.OAuthResultRejected}
	q := r.URL.Query()

	name, reqErr := h.resolveProvider(r)
	res.Provider = name
	if reqErr != nil {
		return res, reqErr
	}

	if code := q.Get("error"); code != "" {
		res.Result = instrumentation.OAuthResultDenied
		return res, ErrProviderDenied(code, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return res, ErrMissingParameter(MsgCodeRequired)
	}

	host, reqErr := requestHost(r)
	if reqErr != nil {
		return res, reqErr
	}
	res.Host = host
	redirectURI := CallbackURL(host, name)

	if h.signer != nil {
		if _, err := h.signer.Verify(q.Get("state"), name, redirectURI); err != nil {
			h.metrics.RecordStateRejected(ctx, instrumentation.ProviderLabel(name, h.knownProviders()))
			return res, ErrInvalidState(err)
		}
	}

	d, err := provider.Build(h.cfg, redirectURI)
	if err != nil {
		res.Result = instrumentation.OAuthResultFailure
		return res, ErrInternal(err)
	}
	d.ProviderName = name

	token, err := h.exchange(ctx, d, code)
	if err != nil {
		res.Result = instrumentation.OAuthResultFailure
		return res, ErrExchangeFailure(err)
	}

	page, err := messaging.Render(name, messaging.StatusSuccess, token.AccessToken, h.cfg.AllowedOrigins)
	if err != nil {
		res.Result = instrumentation.OAuthResultFailure
		return res, ErrInternal(err)
	}

	res.Result = instrumentation.OAuthResultSuccess
	res.Page = page
	return res, nil
}

// exchange trades the code for a token inside a client span.
func (h *Handler) exchange(ctx context.Context, d provider.Descriptor, code string) (provider.Token, error) {
	p := h.providers.Resolve(d.ProviderName)
	providerLabel := instrumentation.ProviderLabel(d.ProviderName, h.knownProviders())

	ctx, span := instrumentation.StartExchangeSpan(ctx, providerLabel)
	defer span.End()

	start := time.Now()
	token, err := p.Exchange(ctx, d, code)
	duration := time.Since(start)

	logger := logging.WithTraceID(logging.WithProvider(logging.WithOperation(h.logger, instrumentation.OperationExchange), providerLabel), instrumentation.TraceID(ctx))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		h.metrics.RecordExchange(ctx, providerLabel, instrumentation.StatusError, duration)
		logger.Warn("token exchange failed",
			slog.Duration(logging.KeyDuration, duration),
			logging.Err(err),
		)
		return provider.Token{}, err
	}

	instrumentation.SetSpanSuccess(span)
	h.metrics.RecordExchange(ctx, providerLabel, instrumentation.StatusSuccess, duration)
	logger.Debug("token exchange succeeded",
		slog.Duration(logging.KeyDuration, duration),
		slog.String("token", logging.SanitizeToken(token.AccessToken)),
	)
	return token, nil
}
