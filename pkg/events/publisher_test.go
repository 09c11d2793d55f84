package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledRabbitPublisherDropsEvents(t *testing.T) {
	p, err := NewRabbitPublisher("", "lms.events", zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, p.Publish(context.Background(), Event{Type: EventQuizCompleted, UserID: 1}))
	assert.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: EventCertificateIssued}))
	assert.NoError(t, p.Close())
}
