package apiclient

import (
	"net/http"
	"net/http/httputil"

	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/credentials"
)

// bearerTransport добавляет заголовок Authorization, если в сессии есть токен доступа.
type bearerTransport struct {
	base  http.RoundTripper
	creds *credentials.Session
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.creds.AccessToken()
	if err != nil || token == "" || req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(cloned)
}

// debugTransport пишет дамп запросов и ответов в лог на уровне debug.
// Дамп содержит токены, поэтому включать его стоит только при отладке.
type debugTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		t.logger.Debug("http request",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.ByteString("dump", dump),
		)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("http request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		t.logger.Debug("http response",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("dump", dump),
		)
	}
	return resp, nil
}
