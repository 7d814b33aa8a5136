package ledger

import (
	"time"

	"marketpipeline/pkg/conn"
)

// Store persists trade closures and execution reports through the
// shared pkg/conn Postgres client.
type Store struct {
	client *conn.Client
}

// New opens a Postgres connection and migrates the ledger tables.
func New(option conn.Option) (*Store, error) {
	client, err := conn.New(option)
	if err != nil {
		return nil, err
	}
	if err := client.DB().AutoMigrate(&TradeClosure{}, &ExecutionReport{}); err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// RecordClosure inserts a closed trade's ledger row.
func (s *Store) RecordClosure(tc TradeClosure) error {
	if tc.ClosedAt.IsZero() {
		tc.ClosedAt = time.Now()
	}
	return s.client.DB().Create(&tc).Error
}

// RecordExecutionReport inserts one execution report for audit.
func (s *Store) RecordExecutionReport(er ExecutionReport) error {
	if er.ReportedAt.IsZero() {
		er.ReportedAt = time.Now()
	}
	return s.client.DB().Create(&er).Error
}
