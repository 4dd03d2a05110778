package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClassifier_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "panel.jpg", header.Filename)
		assert.Equal(t, "jpeg-bytes", string(body))

		_, _ = w.Write([]byte(`{"fault_type":"Dusty","confidence":0.87}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.Client(), srv.URL)
	p, err := c.Classify(context.Background(), "panel.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Dusty", p.Label)
	assert.InDelta(t, 0.87, p.Confidence, 1e-9)
}

func TestHTTPClassifier_MissingLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confidence":0.5}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.Client(), srv.URL)
	_, err := c.Classify(context.Background(), "panel.jpg", strings.NewReader("x"))
	assert.Error(t, err)
}
