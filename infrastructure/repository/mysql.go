package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
)

const createTable = `CREATE TABLE IF NOT EXISTS poll_subscriptions (
	url VARCHAR(255) NOT NULL PRIMARY KEY,
	notify_chats JSON NOT NULL,
	last_check DATETIME(3) NOT NULL,
	data JSON NULL
)`

type mysqlRepository struct {
	db *sql.DB
}

// NewMySQL stores one row per poll. Save rewrites the whole table in a
// transaction.
func NewMySQL(db *sql.DB) services.Repository {
	return &mysqlRepository{db: db}
}

// Migrate creates the table if needed.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createTable)
	return err
}

type dbSubscription struct {
	Url         string
	NotifyChats []byte
	LastCheck   time.Time
	Data        []byte
}

func (r *mysqlRepository) Load(ctx context.Context) (entities.State, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT url,notify_chats,last_check,data FROM poll_subscriptions")
	if err != nil {
		return entities.State{}, err
	}
	defer rows.Close()

	state := entities.NewState()

	for rows.Next() {
		var s dbSubscription
		err = rows.Scan(&s.Url, &s.NotifyChats, &s.LastCheck, &s.Data)
		if err != nil {
			return entities.State{}, err
		}

		var sub entities.Subscription
		if err = json.Unmarshal(s.NotifyChats, &sub.NotifyChats); err != nil {
			return entities.State{}, fmt.Errorf("invalid notify_chats for %s: %w", s.Url, err)
		}

		if len(s.Data) > 0 {
			var snapshot entities.Snapshot
			if err = json.Unmarshal(s.Data, &snapshot); err != nil {
				return entities.State{}, fmt.Errorf("invalid data for %s: %w", s.Url, err)
			}
			sub.Data = &snapshot
		}

		sub.LastCheck = s.LastCheck.UTC()
		state.Polls[s.Url] = &sub
	}

	return state, rows.Err()
}

func (r *mysqlRepository) Save(ctx context.Context, state entities.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, "DELETE FROM poll_subscriptions"); err != nil {
		return err
	}

	for url, sub := range state.Polls {
		chats, err := json.Marshal(sub.NotifyChats)
		if err != nil {
			return err
		}

		var data []byte
		if sub.Data != nil {
			data, err = json.Marshal(sub.Data)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO poll_subscriptions(url,notify_chats,last_check,data) VALUES(?,?,?,?)",
			url,
			chats,
			sub.LastCheck.UTC(),
			data,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
