package http

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
	i18ncatalog "github.com/osusu/osusu/internal/platform/i18n/catalog"
	"golang.org/x/text/language"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorBody is the JSON error envelope for every failed request.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string            `json:"code"`
	Reason   string            `json:"reason,omitempty"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// localeMatcher matches Accept-Language preferences against the embedded
// catalog locales, with the base locale as the fallback.
type localeMatcher struct {
	names   []string
	matcher language.Matcher
}

var supportedLocales = newLocaleMatcher()

func newLocaleMatcher() *localeMatcher {
	names := []string{i18ncatalog.BaseLocale}
	tags := []language.Tag{language.Make(i18ncatalog.BaseLocale)}
	for _, locale := range i18ncatalog.Default().Locales() {
		if locale == i18ncatalog.BaseLocale {
			continue
		}
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		names = append(names, locale)
		tags = append(tags, tag)
	}
	return &localeMatcher{names: names, matcher: language.NewMatcher(tags)}
}

func (m *localeMatcher) match(preferred []language.Tag) string {
	_, index, _ := m.matcher.Match(preferred...)
	if index < 0 || index >= len(m.names) {
		return i18ncatalog.BaseLocale
	}
	return m.names[index]
}

// resolveLocale picks the response language for a request. A lang query
// parameter wins over the Accept-Language header.
func resolveLocale(r *http.Request) string {
	if r == nil {
		return apperrors.DefaultLocale
	}
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		if i18ncatalog.Default().HasLocale(lang) {
			return lang
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return supportedLocales.match(tags)
		}
	}
	return apperrors.DefaultLocale
}

// writeJSON writes a JSON response with the provided status code.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError localizes err and writes the error envelope. The body carries
// the gRPC code name, the stable reason, the localized message and any
// structured metadata.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status.Convert(apperrors.HandleError(err, resolveLocale(r)))

	body := errorBody{Error: errorDetail{
		Code:    st.Code().String(),
		Message: st.Message(),
	}}
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			body.Error.Reason = d.Reason
			body.Error.Metadata = d.Metadata
		case *errdetails.LocalizedMessage:
			body.Error.Message = d.Message
		}
	}

	writeJSON(w, httpStatus(apperrors.GetCode(err), st.Code()), body)
}

// httpStatus maps the error onto an HTTP status code. Grant failures are
// authentication failures regardless of their gRPC classification.
func httpStatus(code apperrors.Code, grpcCode codes.Code) int {
	switch code {
	case apperrors.CodeGrantInvalid, apperrors.CodeGrantExpired, apperrors.CodeGrantMismatch:
		return http.StatusUnauthorized
	}
	switch grpcCode {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
