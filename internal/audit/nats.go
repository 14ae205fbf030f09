package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/observability"
)

// Header names set on published records.
const (
	HeaderRecordID = "Analyst-Record-Id"
	HeaderPrevHash = "Analyst-Prev-Hash"
	HeaderHeight   = "Analyst-Height"
)

type publisher interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NATSSink publishes records to a subject for an external ledger service.
// The chain is kept per process; the height header lets a consumer detect
// gaps.
type NATSSink struct {
	conn    publisher
	subject string
	mu      sync.Mutex
	last    string
	height  int
	logger  *zap.Logger
}

// ConnectNATS dials url and returns a sink publishing to subject.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATSSink, error) {
	logger = observability.OrNop(logger).Named("audit")
	nc, err := nats.Connect(url,
		nats.Name("siem-analyst-audit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSSink(nc, subject, logger), nil
}

func newNATSSink(conn publisher, subject string, logger *zap.Logger) *NATSSink {
	return &NATSSink{
		conn:    conn,
		subject: subject,
		last:    genesisHash,
		logger:  observability.OrNop(logger),
	}
}

// Write implements Sink.
func (s *NATSSink) Write(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := seal(rec, s.last)
	if err != nil {
		return rec, err
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return rec, fmt.Errorf("marshal record: %w", err)
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, sealed.ID)
	msg.Header.Set(HeaderRecordID, sealed.ID)
	msg.Header.Set(HeaderPrevHash, sealed.PrevHash)
	msg.Header.Set(HeaderHeight, strconv.Itoa(s.height+1))

	if err := s.conn.PublishMsg(msg); err != nil {
		return rec, fmt.Errorf("failed to publish audit record: %w", err)
	}
	s.last = sealed.Hash
	s.height++

	s.logger.Debug("published audit record",
		zap.String("subject", s.subject),
		zap.String("id", sealed.ID),
		zap.Int("height", s.height))
	return sealed, nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
