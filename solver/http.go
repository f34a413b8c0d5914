package solver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/YFS90/gisnav/geopose"
)

// DefaultEndpoint is the default pose estimator endpoint URL.
const DefaultEndpoint = "http://localhost:8090/predictions/loftr"

// HTTPSolver calls a pose estimation model served over HTTP. The request
// carries the PNG-encoded query image and reference stack; the response is a
// JSON document with a row-major rotation matrix and a translation vector.
type HTTPSolver struct {
	endpoint   string
	httpClient *http.Client
}

// poseResponse is the solver service's reply shape.
type poseResponse struct {
	Found       bool      `mapstructure:"found"`
	Rotation    []float64 `mapstructure:"rotation"`
	Translation []float64 `mapstructure:"translation"`
}

// NewHTTPSolver creates an HTTPSolver for the given endpoint. A zero timeout
// leaves the call bounded only by the request context.
func NewHTTPSolver(endpoint string, timeout time.Duration) *HTTPSolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPSolver{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// EstimatePose sends the query and reference pair to the solver service and
// decodes the returned pose. It returns ErrNoMatch when the service reports
// that it could not match the pair.
func (s *HTTPSolver) EstimatePose(ctx context.Context, query *image.Gray, reference geopose.RasterStack) (geopose.RawPoseEstimate, error) {
	queryB64, err := encodePNG(query)
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("encode query image: %w", err)
	}
	refB64, err := encodePNG(geopose.EncodeStack(reference))
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("encode reference stack: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":     queryB64,
		"reference": refB64,
	})
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("marshal solver request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("solver call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return geopose.RawPoseEstimate{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, s.endpoint)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("read solver response: %w", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("parse solver response: %w", err)
	}
	var decoded poseResponse
	if err := mapstructure.Decode(generic, &decoded); err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("decode solver response: %w", err)
	}

	if !decoded.Found {
		return geopose.RawPoseEstimate{}, ErrNoMatch
	}
	estimate, err := geopose.NewRawPoseEstimate(decoded.Rotation, decoded.Translation)
	if err != nil {
		return geopose.RawPoseEstimate{}, fmt.Errorf("solver returned malformed pose: %w", err)
	}
	return estimate, nil
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
