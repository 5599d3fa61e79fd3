package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// echoOrderHandler возвращает тело запроса внутри JSON-ответа с указанным типом и статусом.
func echoOrderHandler(contentType string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		if status != http.StatusNoContent {
			_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
		}
	}
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		gzipRequest    bool
		acceptEncoding string
		contentType    string
		status         int
		wantEncoding   string
		wantBody       string
	}{
		{
			name:           "json response compressed",
			body:           `{"cart_id":7}`,
			acceptEncoding: "gzip, deflate",
			contentType:    "application/json",
			status:         http.StatusCreated,
			wantEncoding:   "gzip",
			wantBody:       `{"echo":{"cart_id":7}}`,
		},
		{
			name:         "client without gzip gets plain body",
			body:         `{"cart_id":7}`,
			contentType:  "application/json",
			status:       http.StatusOK,
			wantEncoding: "",
			wantBody:     `{"echo":{"cart_id":7}}`,
		},
		{
			name:           "compressed request body is unpacked",
			body:           `{"sku":"BOOK001","quantity":2}`,
			gzipRequest:    true,
			acceptEncoding: "gzip",
			contentType:    "application/json",
			status:         http.StatusOK,
			wantEncoding:   "gzip",
			wantBody:       `{"echo":{"sku":"BOOK001","quantity":2}}`,
		},
		{
			name:           "binary content type is not compressed",
			body:           `1`,
			acceptEncoding: "gzip",
			contentType:    "application/octet-stream",
			status:         http.StatusOK,
			wantEncoding:   "",
			wantBody:       `{"echo":1}`,
		},
		{
			name:           "no content stays uncompressed",
			acceptEncoding: "gzip",
			contentType:    "application/json",
			status:         http.StatusNoContent,
			wantEncoding:   "",
			wantBody:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader = strings.NewReader(tt.body)
			if tt.gzipRequest {
				reqBody = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", reqBody)
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(echoOrderHandler(tt.contentType, tt.status)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.status {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.status)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.wantEncoding)
			}

			var r io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				r = gr
			}
			body, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != tt.wantBody {
				t.Fatalf("body: got %q want %q", body, tt.wantBody)
			}
		})
	}
}

func TestGzipMiddleware_InvalidRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	called := false
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Fatal("next handler must not be called for a broken gzip body")
	}
}
