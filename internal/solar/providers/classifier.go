package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sunsavvy/internal/fault"
)

// Uploads larger than this are rejected before leaving the process.
const maxClassifierImageBytes = 10 << 20

// HTTPClassifier implements fault.Classifier against a remote image model
// that accepts a multipart "image" field.
type HTTPClassifier struct {
	url     string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewHTTPClassifier(client *http.Client, url string) *HTTPClassifier {
	return &HTTPClassifier{
		url: url,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     time.Second,
			},
		},
		circuit: newCircuit("classifier"),
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, filename string, image io.Reader) (fault.Prediction, error) {
	data, err := io.ReadAll(io.LimitReader(image, maxClassifierImageBytes+1))
	if err != nil {
		return fault.Prediction{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxClassifierImageBytes {
		return fault.Prediction{}, fmt.Errorf("image exceeds %d bytes", maxClassifierImageBytes)
	}

	buildRequest := func() (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequest(http.MethodPost, c.url, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return fault.Prediction{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		FaultType  string  `json:"fault_type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fault.Prediction{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.FaultType == "" {
		return fault.Prediction{}, fmt.Errorf("classifier returned no label")
	}

	return fault.Prediction{Label: payload.FaultType, Confidence: payload.Confidence}, nil
}
