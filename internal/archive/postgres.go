package archive

import (
	"context"
	"database/sql"

	"github.com/drope29/api-flashbets/internal/bets"
)

// Postgres persiste apostas e lançamentos contábeis pra auditoria e
// relatórios. Fica fora do caminho quente: o estado autoritativo mora no
// motor em memória e o archive é espelho best-effort.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// SaveBet insere o registro da aposta no aceite
func (p *Postgres) SaveBet(ctx context.Context, b *bets.Bet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (id, account_id, match_id, market_id, window_ordinal,
			selection, stake_cents, odd_value, status, idempotency_token, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.AccountID, b.MatchID, b.MarketID, b.WindowOrdinal,
		b.Selection, b.StakeCents, b.OddValue, string(b.Status), b.IdempotencyToken, b.PlacedAt,
	)
	return err
}

// UpdateBetStatus grava o desfecho terminal da liquidação
func (p *Postgres) UpdateBetStatus(ctx context.Context, betID string, status bets.Status, payoutCents int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status=$1, payout_cents=$2, settled_at=now() WHERE id=$3`,
		string(status), payoutCents, betID,
	)
	return err
}

// SaveLedgerEntry registra a operação no espelho do ledger
func (p *Postgres) SaveLedgerEntry(ctx context.Context, e bets.LedgerEntry) error {
	var betID any
	if e.RelatedBetID != "" {
		betID = e.RelatedBetID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallet_ledger (account_id, operation_type, amount_cents, description, related_bet_id)
		VALUES ($1,$2,$3,$4,$5)`,
		e.AccountID, e.Operation, e.AmountCents, e.Description, betID,
	)
	return err
}
