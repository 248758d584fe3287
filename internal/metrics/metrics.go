package metrics

import (
	"context"
	"log"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
)

// Emitter pushes batch outcome counters to CloudWatch. An Emitter with an
// empty namespace (or a nil Emitter) is a no-op, so callers never branch.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewEmitter returns an Emitter; namespace "" disables emission.
func NewEmitter(client aws.CloudWatchAPI, namespace string) *Emitter {
	return &Emitter{client: client, namespace: namespace, nowFunc: time.Now}
}

// EmitBatch publishes per-batch counters: how many images were processed,
// how many failed, and how many bytes compression saved. Metric delivery
// is best effort; a failed put is logged, never propagated, because the
// batch outcome is already decided.
func (e *Emitter) EmitBatch(ctx context.Context, processed, failed int, bytesSaved int64) {
	if e == nil || e.namespace == "" || e.client == nil {
		return
	}

	now := e.nowFunc()
	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(now),
		}
	}

	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(e.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum("ImagesProcessed", float64(processed), cwtypes.StandardUnitCount),
			datum("ImagesFailed", float64(failed), cwtypes.StandardUnitCount),
			datum("BytesSaved", float64(bytesSaved), cwtypes.StandardUnitBytes),
		},
	})
	if err != nil {
		log.Printf("[metrics] put metric data failed: %v", err)
	}
}
