package journal

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/txcoord"
)

// Submitter is the coordinator surface the recorder wraps.
type Submitter interface {
	Submit(ctx context.Context, account common.Address, operation string, args []any, value *big.Int) (*txcoord.Result, error)
}

// RecordingSubmitter persists every submission outcome, success or
// failure, around the wrapped coordinator. Record failures are logged
// and never change the submission result.
type RecordingSubmitter struct {
	next  Submitter
	store *Store
}

// WrapSubmitter decorates next so every Submit lands a Submission row.
func (s *Store) WrapSubmitter(next Submitter) *RecordingSubmitter {
	return &RecordingSubmitter{next: next, store: s}
}

func (r *RecordingSubmitter) Submit(ctx context.Context, account common.Address, operation string, args []any, value *big.Int) (*txcoord.Result, error) {
	res, err := r.next.Submit(ctx, account, operation, args, value)

	sub := &Submission{Account: account.Hex(), Operation: operation}
	if res != nil {
		sub.TxHash = res.TxHash.Hex()
		sub.Nonce = res.Nonce
		if res.GasPrice != nil {
			sub.GasPrice = res.GasPrice.String()
		}
	}
	if err != nil {
		sub.Error = err.Error()
	}
	if recErr := r.store.RecordSubmission(sub); recErr != nil {
		log.Printf("[warn] journal: submission record failed: %v", recErr)
	}
	return res, err
}
