package calibration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// ErrRemote wraps non-success responses from the calibration service.
var ErrRemote = errors.New("calibration service error")

// RemoteConfig configures the calibration service client.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	Retries int

	// Tracer, if set, records one span per computation.
	Tracer *tracing.Tracer
}

// ComputeRequest is the body posted to the calibration service.
type ComputeRequest struct {
	Context Context         `json:"context"`
	Pupils  []packet.Pupil  `json:"pupil_list"`
	Markers []packet.Marker `json:"ref_list"`
}

// ComputeResponse is the calibration service reply.
type ComputeResponse struct {
	Method string `json:"method"`
	Result Result `json:"result"`
}

// Remote delegates computation to an HTTP calibration service. Transport
// retries come from retryablehttp; a circuit breaker stops calling a
// service that keeps failing.
type Remote struct {
	client  *resty.Client
	breaker *resilience.Breaker
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// NewRemote creates a client for cfg.URL.
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("calibration.remote")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryLogger{logger}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "gazeflow/1.0").
		SetJSONMarshaler(codec.Marshal).
		SetJSONUnmarshaler(codec.Unmarshal).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	breaker := resilience.New("calibration-remote", resilience.Policy{
		FailureThreshold: 3,
		Cooldown:         15 * time.Second,
		OnTransition: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Remote{client: client, breaker: breaker, tracer: cfg.Tracer, logger: logger}
}

// Breaker exposes the circuit breaker for status reporting.
func (r *Remote) Breaker() *resilience.Breaker {
	return r.breaker
}

// Compute implements Computer.
func (r *Remote) Compute(ctx context.Context, cctx Context, pupils []packet.Pupil, markers []packet.Marker) (method string, result Result, err error) {
	header := http.Header{}
	if r.tracer != nil {
		var span *tracing.Span
		span, ctx = r.tracer.StartSpan(ctx, "calibration.remote")
		span.SetTag("pupils", strconv.Itoa(len(pupils)))
		span.SetTag("markers", strconv.Itoa(len(markers)))
		tracing.Inject(ctx, header)
		defer func() {
			if err != nil {
				span.SetError(err)
			}
			span.Finish()
			r.tracer.Submit(span)
		}()
	}

	resp, err := resilience.Call(r.breaker, func() (*ComputeResponse, error) {
		var out ComputeResponse
		res, err := r.client.R().
			SetContext(ctx).
			SetHeaderMultiValues(header).
			SetBody(ComputeRequest{Context: cctx, Pupils: pupils, Markers: markers}).
			SetResult(&out).
			Post("/calibrate")
		if err != nil {
			return nil, fmt.Errorf("post calibration: %w", err)
		}
		if res.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("%w: %s", ErrRemote, res.Status())
		}
		return &out, nil
	})
	if err != nil {
		return "", Result{}, err
	}

	r.logger.Debug("Remote calibration finished",
		zap.String("method", resp.Method),
		zap.String("subject", resp.Result.Subject))
	return resp.Method, resp.Result, nil
}

// retryLogger adapts zap to retryablehttp's leveled logger.
type retryLogger struct {
	l *zap.Logger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Sugar().Errorw(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Sugar().Debugw(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Sugar().Debugw(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Sugar().Warnw(msg, kv...) }
