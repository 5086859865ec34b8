package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/model"
)

// ClaimReceipt inserts the receipt for a signal before anything else in
// the transaction. It returns false when the same signal was already
// claimed. A concurrent claim blocks on the primary key until the first
// transaction finishes, so only one delivery proceeds.
func (q *queries) ClaimReceipt(ctx context.Context, r model.SignalReceipt) (bool, error) {
	at := r.ReceivedAt
	if at.IsZero() {
		at = q.now()
	}
	n, err := q.q.Exec(ctx,
		`INSERT INTO signal_receipts (source_type, source_id, signal_type, signal_key, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id, signal_type, signal_key) DO NOTHING`,
		r.SourceType, r.SourceID, r.SignalType, r.SignalKey, at,
	)
	if err != nil {
		return false, apperr.Persistence("claim receipt", eris.Wrap(err, "store: claim signal receipt"))
	}
	return n > 0, nil
}

// AttachReceipt points a claimed receipt at the suggestion it produced.
func (q *queries) AttachReceipt(ctx context.Context, r model.SignalReceipt, suggestionID string) error {
	n, err := q.q.Exec(ctx,
		`UPDATE signal_receipts SET suggestion_id = ?
		WHERE source_type = ? AND source_id = ? AND signal_type = ? AND signal_key = ?`,
		suggestionID, r.SourceType, r.SourceID, r.SignalType, r.SignalKey,
	)
	if err != nil {
		return apperr.Persistence("attach receipt", eris.Wrap(err, "store: attach signal receipt"))
	}
	if n == 0 {
		return apperr.NotFound("signal receipt", r.SourceType+"/"+r.SourceID+"/"+r.SignalType)
	}
	return nil
}

// GetReceipt returns the receipt matching r's identity, or nil when unseen.
func (q *queries) GetReceipt(ctx context.Context, r model.SignalReceipt) (*model.SignalReceipt, error) {
	var out model.SignalReceipt
	var suggestionID *string
	err := q.q.QueryRow(ctx,
		`SELECT source_type, source_id, signal_type, signal_key, suggestion_id, received_at FROM signal_receipts
		WHERE source_type = ? AND source_id = ? AND signal_type = ? AND signal_key = ?`,
		r.SourceType, r.SourceID, r.SignalType, r.SignalKey,
	).Scan(&out.SourceType, &out.SourceID, &out.SignalType, &out.SignalKey, &suggestionID, &out.ReceivedAt)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Persistence("get receipt", eris.Wrap(err, "store: get signal receipt"))
	}
	if suggestionID != nil {
		out.SuggestionID = *suggestionID
	}
	return &out, nil
}
