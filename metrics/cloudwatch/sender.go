// Package cloudwatch delivers metric batches with PutMetricData.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/retry"
)

// Client is the part of the CloudWatch API the sender uses.
type Client interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Cfg configures the CloudWatch sender.
type Cfg struct {
	Tag string `mapstructure:"tag"`
	// Region overrides the region of the default AWS configuration.
	Region string `mapstructure:"region"`
	// Endpoint overrides the service endpoint, e.g. for a local emulator.
	Endpoint string `mapstructure:"endpoint"`
	// RequestTimeout bounds a single PutMetricData call. Zero means no bound.
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

// throttling and server-side codes worth retrying.
var _retryableCodes = map[string]struct{}{
	"Throttling":               {},
	"ThrottlingException":      {},
	"RequestLimitExceeded":     {},
	"TooManyRequestsException": {},
	"ServiceUnavailable":       {},
	"InternalServiceFault":     {},
	"InternalServiceError":     {},
	"InternalFailure":          {},
}

// Sender implements metrics.Sender on top of a CloudWatch client.
type Sender struct {
	client  Client
	timeout time.Duration
}

// NewSender wraps client.
func NewSender(client Client, requestTimeout time.Duration) *Sender {
	return &Sender{client: client, timeout: requestTimeout}
}

// NewClient builds a CloudWatch client from the default AWS configuration.
// The SDK's own retries are disabled; the emitter's retrier owns retrying.
func NewClient(ctx context.Context, cfg *Cfg) (*cloudwatch.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RetryMaxAttempts = 1
	}), nil
}

// Send performs one PutMetricData call for b.
func (s *Sender) Send(ctx context.Context, b metrics.Batch) error {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err := s.client.PutMetricData(reqCtx, toInput(b))
	if err == nil {
		return nil
	}
	err = fmt.Errorf("put metric data to %s: %w", b.Namespace, err)
	// a request that hit its own timeout while ctx is still live is a
	// transport fault like any other.
	if isRetryable(err) || (ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)) {
		return retry.Retryable(err)
	}
	return err
}

// FactoryName implements plugin.Plugin.
func (s *Sender) FactoryName() string {
	return _factoryName
}

func toInput(b metrics.Batch) *cloudwatch.PutMetricDataInput {
	data := make([]types.MetricDatum, 0, len(b.Data))
	for _, d := range b.Data {
		datum := types.MetricDatum{
			MetricName: aws.String(d.MetricName),
			Timestamp:  aws.Time(d.Timestamp),
			Unit:       types.StandardUnit(d.Unit),
			Values:     d.Values,
			Counts:     d.Counts,
		}
		for _, dim := range d.Dimensions {
			datum.Dimensions = append(datum.Dimensions, types.Dimension{
				Name:  aws.String(dim.Name),
				Value: aws.String(dim.Value),
			})
		}
		data = append(data, datum)
	}
	return &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(b.Namespace),
		MetricData: data,
	}
}

// isRetryable leaves context errors to the caller, which alone knows whether
// the request or the run timed out.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := _retryableCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.Response != nil {
		code := respErr.HTTPStatusCode()
		if code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
