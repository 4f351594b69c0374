package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	_ events.EventStore = (*PostgresSagaJournal)(nil)
	_ events.Publisher  = (*PostgresSagaJournal)(nil)
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS saga_journal (
	sequence       BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	run_id         TEXT NOT NULL,
	topic          TEXT NOT NULL,
	version        TEXT NOT NULL,
	data           JSONB NOT NULL,
	metadata       JSONB NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS saga_journal_run_id_idx ON saga_journal (run_id, sequence);`

// PostgresSagaJournal is an append-only log of saga events keyed by run id.
// Publishing to it appends, so it can sit behind a fan-out publisher.
type PostgresSagaJournal struct {
	db *sqlx.DB
}

// NewPostgresSagaJournal creates a new PostgresSagaJournal
func NewPostgresSagaJournal(db *sqlx.DB) *PostgresSagaJournal {
	return &PostgresSagaJournal{db: db}
}

// journalEvent represents an event row
type journalEvent struct {
	Sequence      int64     `db:"sequence"`
	ID            string    `db:"id"`
	RunID         string    `db:"run_id"`
	Topic         string    `db:"topic"`
	Version       string    `db:"version"`
	Data          []byte    `db:"data"`
	Metadata      []byte    `db:"metadata"`
	Timestamp     time.Time `db:"timestamp"`
	CorrelationID string    `db:"correlation_id"`
}

// EnsureSchema creates the journal table when missing
func (j *PostgresSagaJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, journalSchema); err != nil {
		return errors.Wrap(err, "failed to create saga journal schema")
	}
	return nil
}

// Publish implements events.Publisher
func (j *PostgresSagaJournal) Publish(ctx context.Context, evts ...*events.Event) error {
	return j.Append(ctx, evts...)
}

// Append stores events in one transaction. Events already stored are skipped,
// queue redeliveries may append the same event twice.
func (j *PostgresSagaJournal) Append(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO saga_journal (
			id, run_id, topic, version, data, metadata, timestamp, correlation_id
		) VALUES (
			:id, :run_id, :topic, :version, :data, :metadata, :timestamp, :correlation_id
		)
		ON CONFLICT (id) DO NOTHING`

	for _, event := range evts {
		row, err := toJournalRow(event)
		if err != nil {
			return errors.Wrap(err, "failed to convert event")
		}

		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return errors.Wrapf(err, "failed to insert event %s", event.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit saga journal")
	}
	return nil
}

// Load returns every event of a run in append order
func (j *PostgresSagaJournal) Load(ctx context.Context, runID models.ID) ([]*events.Event, error) {
	query := `
		SELECT sequence, id, run_id, topic, version, data, metadata, timestamp, correlation_id
		FROM saga_journal
		WHERE run_id = $1
		ORDER BY sequence ASC`

	var rows []journalEvent
	if err := j.db.SelectContext(ctx, &rows, query, runID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to load saga journal")
	}

	evts := make([]*events.Event, len(rows))
	for i := range rows {
		event, err := fromJournalRow(&rows[i])
		if err != nil {
			return nil, err
		}
		evts[i] = event
	}

	return evts, nil
}

func toJournalRow(event *events.Event) (*journalEvent, error) {
	data, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event data")
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = make(events.Metadata)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event metadata")
	}

	return &journalEvent{
		ID:            event.ID.String(),
		RunID:         event.AggregateID.String(),
		Topic:         event.Topic.String(),
		Version:       event.Version,
		Data:          data,
		Metadata:      metadataJSON,
		Timestamp:     event.Timestamp,
		CorrelationID: event.CorrelationID.String(),
	}, nil
}

func fromJournalRow(row *journalEvent) (*events.Event, error) {
	topic, err := events.NewTopic(row.Topic)
	if err != nil {
		return nil, errors.Wrapf(err, "event %s", row.ID)
	}

	metadata := make(events.Metadata)
	if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event metadata")
	}

	return &events.Event{
		ID:            models.ID(row.ID),
		AggregateID:   models.ID(row.RunID),
		Topic:         topic,
		Version:       row.Version,
		Data:          json.RawMessage(row.Data),
		Metadata:      metadata,
		Timestamp:     row.Timestamp.UTC(),
		CorrelationID: models.ID(row.CorrelationID),
	}, nil
}
