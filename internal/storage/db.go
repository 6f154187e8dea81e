package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subscription_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_channel_ts ON events(channel, timestamp);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	capability TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_ts ON subscriptions(start_time);
`

// Event is one value delivered on a channel. Timestamps are unix
// milliseconds; Payload is the JSON encoding of the delivered value.
type Event struct {
	ID             int64  `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Channel        string `json:"channel"`
	Timestamp      int64  `json:"timestamp"`
	Payload        string `json:"payload"`
}

// Subscription records the lifetime of one Listen call. EndTime is 0 while
// the subscription is live.
type Subscription struct {
	ID         string `json:"id"`
	Channel    string `json:"channel"`
	Capability string `json:"capability"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
}

// DB wraps the SQLite event journal.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertEvent appends an event and returns its row id.
func (d *DB) InsertEvent(e Event) (int64, error) {
	res, err := d.db.Exec(
		"INSERT INTO events (subscription_id, channel, timestamp, payload) VALUES (?, ?, ?, ?)",
		e.SubscriptionID, e.Channel, e.Timestamp, e.Payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestEvent returns the most recent event on channel, or nil when the
// channel has none.
func (d *DB) LatestEvent(channel string) (*Event, error) {
	row := d.db.QueryRow(
		"SELECT id, subscription_id, channel, timestamp, payload FROM events WHERE channel = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		channel,
	)
	var e Event
	err := row.Scan(&e.ID, &e.SubscriptionID, &e.Channel, &e.Timestamp, &e.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EventsInRange returns events on channel within [from, to], oldest first.
func (d *DB) EventsInRange(channel string, from, to int64) ([]Event, error) {
	rows, err := d.db.Query(
		"SELECT id, subscription_id, channel, timestamp, payload FROM events WHERE channel = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		channel, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.Channel, &e.Timestamp, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertSubscription records the start of a subscription.
func (d *DB) InsertSubscription(s Subscription) error {
	_, err := d.db.Exec(
		"INSERT INTO subscriptions (id, channel, capability, start_time, end_time) VALUES (?, ?, ?, ?, ?)",
		s.ID, s.Channel, s.Capability, s.StartTime, s.EndTime,
	)
	return err
}

// EndSubscription stamps the end time of a live subscription. Ending an
// already ended or unknown subscription is a no-op.
func (d *DB) EndSubscription(id string, end int64) error {
	_, err := d.db.Exec(
		"UPDATE subscriptions SET end_time = ? WHERE id = ? AND end_time = 0",
		end, id,
	)
	return err
}

// SubscriptionsInRange returns subscriptions that were live at any point in
// [from, to].
func (d *DB) SubscriptionsInRange(from, to int64) ([]Subscription, error) {
	rows, err := d.db.Query(
		"SELECT id, channel, capability, start_time, end_time FROM subscriptions WHERE start_time <= ? AND (end_time = 0 OR end_time >= ?) ORDER BY start_time",
		to, from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.Channel, &s.Capability, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
