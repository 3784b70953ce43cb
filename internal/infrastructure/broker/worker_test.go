package broker

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/pannpers/go-logging/logging"
)

// fakeChannel is a resilientChannel that never needs to reconnect: Publish
// and Ack always succeed on the first try.
type fakeChannel struct {
	published [][]byte
	acked     []uint64
}

func (f *fakeChannel) Publish(ctx context.Context, body []byte) (<-chan amqp.Delivery, error) {
	f.published = append(f.published, body)
	return nil, nil
}

func (f *fakeChannel) Ack(ctx context.Context, deliveryTag uint64) (<-chan amqp.Delivery, error) {
	f.acked = append(f.acked, deliveryTag)
	return nil, nil
}

func (f *fakeChannel) Setup(ctx context.Context) (<-chan amqp.Delivery, error) {
	return nil, nil
}

func (f *fakeChannel) reconnect(ctx context.Context) (<-chan amqp.Delivery, error) {
	return nil, nil
}

// fakeProcessor records the listens it was asked to process.
type fakeProcessor struct {
	processed []entity.Listen
}

func (f *fakeProcessor) ProcessListen(ctx context.Context, listen entity.Listen, body []byte) error {
	f.processed = append(f.processed, listen)
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *fakeChannel, *fakeProcessor) {
	t.Helper()
	logger, err := logging.New()
	require.NoError(t, err)

	channel := &fakeChannel{}
	processor := &fakeProcessor{}
	return &Worker{channel: channel, processor: processor, logger: logger}, channel, processor
}

// TestHandleDelivery_ArtistOnlyListenWithoutTitle locks in the literal
// title-less artist-credit scenario: a delivery naming an artist and its
// MBIDs but no title or recording MBID must reach the processor instead of
// being dropped as malformed, and must still be published and acked.
func TestHandleDelivery_ArtistOnlyListenWithoutTitle(t *testing.T) {
	worker, channel, processor := newTestWorker(t)

	body := []byte(`{"artist":"X & Y","artist_mbids":["11111111-1111-1111-1111-111111111111","22222222-2222-2222-2222-222222222222"]}`)
	delivery := amqp.Delivery{Body: body, DeliveryTag: 42}

	result := worker.handleDelivery(context.Background(), delivery, nil)
	assert.Nil(t, result)

	require.Len(t, processor.processed, 1)
	listen := processor.processed[0]
	assert.Equal(t, "X & Y", listen.Artist)
	assert.Equal(t, "", listen.Title)
	assert.Nil(t, listen.RecordingMBID)
	require.NotNil(t, listen.ArtistMBIDs)
	assert.Len(t, listen.ArtistMBIDs, 2)

	require.Len(t, channel.published, 1)
	assert.Equal(t, body, channel.published[0])
	require.Len(t, channel.acked, 1)
	assert.Equal(t, uint64(42), channel.acked[0])
}

// TestHandleDelivery_MalformedListenIsDroppedNotProcessed ensures a
// genuinely invalid message (missing artist) is never handed to the
// processor, yet is still published and acked so it does not loop forever.
func TestHandleDelivery_MalformedListenIsDroppedNotProcessed(t *testing.T) {
	worker, channel, processor := newTestWorker(t)

	delivery := amqp.Delivery{Body: []byte(`{"title":"T"}`), DeliveryTag: 7}
	worker.handleDelivery(context.Background(), delivery, nil)

	assert.Empty(t, processor.processed)
	assert.Len(t, channel.published, 1)
	assert.Len(t, channel.acked, 1)
}
