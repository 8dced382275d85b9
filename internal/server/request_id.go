package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"coursemedia/internal/observability/logging"
)

type idGenerator func() string

func requestIDMiddleware(next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(newRequestID, next)
}

func requestIDMiddlewareWithGenerator(generator idGenerator, next http.Handler) http.Handler {
	if generator == nil {
		generator = newRequestID
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = generator()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if uploadID := strings.TrimSpace(r.Header.Get("X-Upload-Id")); uploadID != "" {
			ctx = logging.ContextWithUploadID(ctx, uploadID)
		}

		if requestID != "" {
			w.Header().Set("X-Request-Id", requestID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err == nil {
		return hex.EncodeToString(buffer[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
