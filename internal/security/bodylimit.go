package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/backend-giving/internal/common"
)

// BodyLimit enforces a maximum request payload size. The body is buffered so
// webhook handlers can verify signatures over the exact bytes received.
type BodyLimit struct {
	Max int64
}

func tooLarge(w http.ResponseWriter) {
	common.WriteError(w, common.NewAppError(common.CodeValidationFailed, "request body too large", http.StatusRequestEntityTooLarge, nil))
}

// Middleware rejects requests exceeding the configured limit with HTTP 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			tooLarge(w)
			return
		}

		buf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		_ = r.Body.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				tooLarge(w)
				return
			}
			common.WriteError(w, common.NewAppError(common.CodeValidationFailed, "invalid request body", http.StatusBadRequest, err))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}
