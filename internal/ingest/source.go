package ingest

import (
	"context"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FileSource loads the data set from a file on every call.
type FileSource struct {
	Path string
}

// Load reads and parses the file.
func (s FileSource) Load(ctx context.Context) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(s.Path)
}

// String returns the file path.
func (s FileSource) String() string {
	return "file:" + s.Path
}

// RepositorySource loads the stored transaction history.
type RepositorySource struct {
	Repo domain.Repository
}

// Load lists the stored history, sorted by user and time.
func (s RepositorySource) Load(ctx context.Context) ([]*domain.Transaction, error) {
	txs, err := s.Repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	SortByUserTime(txs)
	return txs, nil
}

// String names the source.
func (s RepositorySource) String() string {
	return "repository"
}
