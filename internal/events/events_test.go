package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
)

type capture struct {
	events []kafka.Event
	err    error
}

func (c *capture) Publish(_ context.Context, ev kafka.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *capture) PublishBatch(ctx context.Context, evs []kafka.Event) error {
	for _, ev := range evs {
		if err := c.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *capture) Close() error { return nil }

func TestPublishRecordsIngestedCapsISBNs(t *testing.T) {
	pub := &capture{}
	isbns := make([]string, 150)
	for i := range isbns {
		isbns[i] = fmt.Sprintf("isbn-%d", i)
	}

	require.NoError(t, PublishRecordsIngested(context.Background(), pub, "csv", 120, 30, isbns))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "csv", pub.events[0].Key)

	ev := pub.events[0].Value.(RecordsIngested)
	assert.Equal(t, TypeRecordsIngested, ev.Type)
	assert.Equal(t, 120, ev.Inserted)
	assert.Equal(t, 30, ev.Updated)
	assert.Len(t, ev.ISBNs, maxAnnouncedISBNs)
	assert.False(t, ev.IngestedAt.IsZero())
}

func TestPublishIndexRebuiltSetsOrigin(t *testing.T) {
	pub := &capture{}
	require.NoError(t, PublishIndexRebuilt(context.Background(), pub, IndexRebuilt{BuildID: "b1"}))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "b1", pub.events[0].Key)

	ev := pub.events[0].Value.(IndexRebuilt)
	assert.Equal(t, TypeIndexRebuilt, ev.Type)
	assert.Equal(t, Origin(), ev.Origin)
}

func TestPublishWrapsProducerError(t *testing.T) {
	pub := &capture{err: assert.AnError}
	err := PublishIndexRebuilt(context.Background(), pub, IndexRebuilt{BuildID: "b1"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), TypeIndexRebuilt)
}

func TestAnnounceHookSkipsLoadedSnapshots(t *testing.T) {
	pub := &capture{}
	hook := AnnounceHook(pub)
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	hook(context.Background(), nil, indexer.BuildStats{BuildID: "loaded", Loaded: true})
	assert.Empty(t, pub.events)

	hook(context.Background(), nil, indexer.BuildStats{
		BuildID:        "built",
		RecordsIndexed: 10,
		RecordsSkipped: 2,
		Model:          "m",
		Dimension:      64,
		BuiltAt:        built,
	})
	require.Len(t, pub.events, 1)
	ev := pub.events[0].Value.(IndexRebuilt)
	assert.Equal(t, "built", ev.BuildID)
	assert.Equal(t, 10, ev.Records)
	assert.Equal(t, 2, ev.Skipped)
	assert.Equal(t, 64, ev.Dimension)
	assert.Equal(t, built, ev.BuiltAt)
}

func TestAnnounceHookLogsFailures(t *testing.T) {
	hook := AnnounceHook(&capture{err: assert.AnError})
	assert.NotPanics(t, func() {
		hook(context.Background(), nil, indexer.BuildStats{BuildID: "b"})
	})
}
