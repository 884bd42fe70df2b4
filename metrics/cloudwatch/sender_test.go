package cloudwatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/plugin"
	"github.com/linchenxuan/runnermetrics/retry"
)

type fakeClient struct {
	inputs      []*cloudwatch.PutMetricDataInput
	err         error
	hasDeadline bool
}

func (c *fakeClient) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput,
	_ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	_, c.hasDeadline = ctx.Deadline()
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

var _ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testBatch() metrics.Batch {
	return metrics.Batch{
		Namespace: "prod-scaleUp-dim",
		Data: []metrics.Datum{
			{
				MetricName: "gh.calls.reposGetContent.wallclock",
				Unit:       metrics.UnitMilliseconds,
				Timestamp:  _ts,
				Values:     []float64{5, 9},
				Counts:     []float64{2, 1},
			},
			{
				MetricName: "run.process",
				Unit:       metrics.UnitCount,
				Timestamp:  _ts,
				Values:     []float64{3},
				Counts:     []float64{1},
				Dimensions: []metrics.DimensionPair{
					{Name: "Owner", Value: "acme"},
					{Name: "Repo", Value: "runner"},
				},
			},
		},
	}
}

func TestSendBuildsInput(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, NewSender(client, 0).Send(context.Background(), testBatch()))
	require.Len(t, client.inputs, 1)
	assert.False(t, client.hasDeadline)

	in := client.inputs[0]
	assert.Equal(t, "prod-scaleUp-dim", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 2)

	d := in.MetricData[0]
	assert.Equal(t, "gh.calls.reposGetContent.wallclock", aws.ToString(d.MetricName))
	assert.Equal(t, types.StandardUnitMilliseconds, d.Unit)
	assert.Equal(t, _ts, aws.ToTime(d.Timestamp))
	assert.Equal(t, []float64{5, 9}, d.Values)
	assert.Equal(t, []float64{2, 1}, d.Counts)
	assert.Empty(t, d.Dimensions)

	dims := in.MetricData[1].Dimensions
	require.Len(t, dims, 2)
	assert.Equal(t, "Owner", aws.ToString(dims[0].Name))
	assert.Equal(t, "acme", aws.ToString(dims[0].Value))
	assert.Equal(t, "Repo", aws.ToString(dims[1].Name))
	assert.Equal(t, types.StandardUnitCount, in.MetricData[1].Unit)
}

func TestSendRequestTimeout(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, NewSender(client, time.Second).Send(context.Background(), testBatch()))
	assert.True(t, client.hasDeadline)
}

func responseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("http error"),
	}
}

func TestSendErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}, true},
		{"internal fault", &smithy.GenericAPIError{Code: "InternalServiceFault"}, true},
		{"invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameterValue"}, false},
		{"too many requests", responseError(http.StatusTooManyRequests), true},
		{"service unavailable", responseError(http.StatusServiceUnavailable), true},
		{"forbidden", responseError(http.StatusForbidden), false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}, true},
		{"request not sent", &smithyhttp.RequestSendError{Err: errors.New("dial tcp: lookup monitoring: no such host")}, true},
		{"no response", responseError(0), true},
		{"serialization", errors.New("serialize PutMetricData input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSender(&fakeClient{err: tt.err}, 0).Send(context.Background(), testBatch())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "prod-scaleUp-dim")
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
		})
	}
}

type slowClient struct{ calls int }

func (c *slowClient) PutMetricData(ctx context.Context, _ *cloudwatch.PutMetricDataInput,
	_ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSendRequestTimeoutIsRetryable(t *testing.T) {
	err := NewSender(&slowClient{}, 10*time.Millisecond).Send(context.Background(), testBatch())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, retry.IsRetryable(err))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = NewSender(&slowClient{}, time.Minute).Send(ctx, testBatch())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, retry.IsRetryable(err))
}

type countingSender struct {
	metrics.Sender
	calls int
}

func (s *countingSender) Send(ctx context.Context, b metrics.Batch) error {
	s.calls++
	return s.Sender.Send(ctx, b)
}

func TestEmitterRetriesUnreachableEndpoint(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/credentials")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := "http://" + l.Addr().String()
	require.NoError(t, l.Close())

	client, err := NewClient(context.Background(), &Cfg{Region: "us-east-1", Endpoint: endpoint})
	require.NoError(t, err)
	s := &countingSender{Sender: NewSender(client, time.Second)}
	r := retry.New(&retry.Cfg{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	err = metrics.NewEmitter(s, r, nil).Emit(context.Background(), []metrics.Batch{testBatch()})
	var flushErr *metrics.FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.True(t, retry.IsRetryable(err))
	assert.Equal(t, 4, s.calls)
}

func TestEmitterRetriesThrottling(t *testing.T) {
	client := &fakeClient{err: &smithy.GenericAPIError{Code: "Throttling"}}
	r := retry.New(&retry.Cfg{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	err := metrics.NewEmitter(NewSender(client, 0), r, nil).Emit(context.Background(), []metrics.Batch{testBatch()})
	var flushErr *metrics.FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.Zero(t, flushErr.Sent)
	assert.Len(t, client.inputs, 3)
}

func TestFactory(t *testing.T) {
	client := &fakeClient{}
	var got *Cfg
	f := &factory{newClient: func(_ context.Context, cfg *Cfg) (Client, error) {
		got = cfg
		return client, nil
	}}
	assert.Equal(t, plugin.Sender, f.Type())
	assert.Equal(t, "cloudwatch", f.Name())

	pm := plugin.NewManager()
	pm.RegisterFactory(f)
	require.NoError(t, pm.SetupPlugins(map[string]any{
		"sender": map[string]any{
			"cloudwatch": map[string]any{"region": "eu-west-1", "requestTimeout": "2s"},
		},
	}))
	require.NotNil(t, got)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Equal(t, 2*time.Second, got.RequestTimeout)

	s, err := metrics.SenderPlugin(pm, "cloudwatch")
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), testBatch()))
	assert.Len(t, client.inputs, 1)
	assert.True(t, client.hasDeadline)
	pm.Destroy()
}

func TestFactorySetupError(t *testing.T) {
	f := &factory{newClient: func(context.Context, *Cfg) (Client, error) {
		return nil, errors.New("no credentials")
	}}
	_, err := f.Setup(&Cfg{})
	assert.ErrorContains(t, err, "no credentials")

	_, err = f.Setup(struct{}{})
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/credentials")

	client, err := NewClient(context.Background(), &Cfg{Region: "ap-southeast-2", Endpoint: "http://127.0.0.1:4566"})
	require.NoError(t, err)
	opts := client.Options()
	assert.Equal(t, "ap-southeast-2", opts.Region)
	assert.Equal(t, "http://127.0.0.1:4566", aws.ToString(opts.BaseEndpoint))
	assert.Equal(t, 1, opts.RetryMaxAttempts)
}
