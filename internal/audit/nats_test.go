package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	msgs    []*nats.Msg
	fail    error
	drained bool
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakePublisher) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSink_PublishesChainedRecords(t *testing.T) {
	pub := &fakePublisher{}
	s := newNATSSink(pub, "analyst.audit.query", nil)
	ctx := context.Background()

	first, err := s.Write(ctx, Record{SessionID: "s1", Query: "q1"})
	require.NoError(t, err)
	second, err := s.Write(ctx, Record{SessionID: "s1", Query: "q2"})
	require.NoError(t, err)

	require.Len(t, pub.msgs, 2)
	msg := pub.msgs[1]
	assert.Equal(t, "analyst.audit.query", msg.Subject)
	assert.Equal(t, second.ID, msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, first.Hash, msg.Header.Get(HeaderPrevHash))
	assert.Equal(t, "2", msg.Header.Get(HeaderHeight))

	var decoded []Record
	for _, m := range pub.msgs {
		var rec Record
		require.NoError(t, json.Unmarshal(m.Data, &rec))
		decoded = append(decoded, rec)
	}
	assert.NoError(t, VerifyChain(decoded))

	require.NoError(t, s.Close())
	assert.True(t, pub.drained)
}

func TestNATSSink_FailedPublishKeepsChain(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("no responders")}
	s := newNATSSink(pub, "audit", nil)

	_, err := s.Write(context.Background(), Record{Query: "q"})
	require.Error(t, err)

	pub.fail = nil
	rec, err := s.Write(context.Background(), Record{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, genesisHash, rec.PrevHash)
}
