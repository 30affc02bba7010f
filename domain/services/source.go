package services

import (
	"context"

	"github.com/CedricFinance/pollwatch/domain/entities"
)

type pollSource struct {
	fetcher Fetcher
	parser  Parser
}

// NewSnapshotSource fetches the poll page and extracts its snapshot. Errors
// are reported as FetchFailure or ParseFailure.
func NewSnapshotSource(fetcher Fetcher, parser Parser) SnapshotSource {
	return &pollSource{fetcher: fetcher, parser: parser}
}

func (s *pollSource) Snapshot(ctx context.Context, url string) (*entities.Snapshot, error) {
	document, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, FetchFailure{URL: url, Err: err}
	}

	snapshot, err := s.parser.Parse(document)
	if err != nil {
		return nil, ParseFailure{URL: url, Err: err}
	}

	return snapshot, nil
}
