package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(TypePublish, PublishJob{SubjectID: "s1", From: "2024-01-01"})
	require.NoError(t, err)

	raw, err := serialize(msg)
	require.NoError(t, err)
	got, err := deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePublish, got.Type)

	var job PublishJob
	require.NoError(t, got.Decode(&job))
	assert.Equal(t, PublishJob{SubjectID: "s1", From: "2024-01-01"}, job)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := deserialize("notify|{}")
	assert.Error(t, err)
	_, err = deserialize(`{"body":{}}`)
	assert.Error(t, err)
}

func TestInMemory(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg, err := NewMessage(TypeNotify, map[string]string{"to": "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))
	assert.ErrorIs(t, q.Publish(ctx, msg), ErrFull)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case got := <-ch:
		assert.Equal(t, TypeNotify, got.Type)
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Error(t, q.Publish(ctx, msg))
}
