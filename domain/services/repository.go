package services

import (
	"context"
	"fmt"

	"github.com/CedricFinance/pollwatch/domain/entities"
)

// Repository persists the whole subscription state as one document.
type Repository interface {
	Load(ctx context.Context) (entities.State, error)
	Save(ctx context.Context, state entities.State) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Parser interface {
	Parse(document []byte) (*entities.Snapshot, error)
}

// SnapshotSource loads the current snapshot of a poll.
type SnapshotSource interface {
	Snapshot(ctx context.Context, url string) (*entities.Snapshot, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipient string, text string) error
}

type InvalidURL struct {
	URL string
}

func (e InvalidURL) Error() string {
	return fmt.Sprintf("%q is not a valid poll url", e.URL)
}

type PollUnreachable struct {
	URL string
	Err error
}

func (e PollUnreachable) Error() string {
	return fmt.Sprintf("poll %s is unreachable: %v", e.URL, e.Err)
}

func (e PollUnreachable) Unwrap() error {
	return e.Err
}

type NotSubscribed struct {
	URL       string
	Recipient string
}

func (e NotSubscribed) Error() string {
	return fmt.Sprintf("%s is not subscribed to %s", e.Recipient, e.URL)
}

type FetchFailure struct {
	URL string
	Err error
}

func (e FetchFailure) Error() string {
	return fmt.Sprintf("could not fetch %s: %v", e.URL, e.Err)
}

func (e FetchFailure) Unwrap() error {
	return e.Err
}

type ParseFailure struct {
	URL string
	Err error
}

func (e ParseFailure) Error() string {
	return fmt.Sprintf("could not parse %s: %v", e.URL, e.Err)
}

func (e ParseFailure) Unwrap() error {
	return e.Err
}
