package repositories

import (
	"context"
	"database/sql"
	"errors"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

type CounterpartyRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, cp *models.Counterparty) error
	GetByID(ctx context.Context, id int64) (*models.Counterparty, error)
	ListAll(ctx context.Context) ([]*models.Counterparty, error)
	InsertAlias(ctx context.Context, tx *sql.Tx, a *models.Alias) error
}

type counterpartyRepository struct {
	db *sql.DB
}

func NewCounterpartyRepository(db *sql.DB) CounterpartyRepository {
	return &counterpartyRepository{db: db}
}

func (r *counterpartyRepository) Insert(ctx context.Context, tx *sql.Tx, cp *models.Counterparty) error {
	query := `
		INSERT INTO counterparties (name, legal_name, tax_id)
		VALUES (?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query, cp.Name, cp.LegalName, cp.TaxID)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	cp.ID = id
	return nil
}

func (r *counterpartyRepository) GetByID(ctx context.Context, id int64) (*models.Counterparty, error) {
	cp := &models.Counterparty{}
	query := `
		SELECT id, name, legal_name, tax_id
		FROM counterparties
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cp.ID,
		&cp.Name,
		&cp.LegalName,
		&cp.TaxID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	aliases, err := r.listAliases(ctx, cp.ID)
	if err != nil {
		return nil, err
	}
	cp.Aliases = aliases
	return cp, nil
}

// ListAll loads every counterparty with its aliases. The alias join is
// done in a single second query rather than per counterparty; the
// counterparty registry of an accounting office is small enough to
// hold in memory for a batch run.
func (r *counterpartyRepository) ListAll(ctx context.Context) ([]*models.Counterparty, error) {
	query := `
		SELECT id, name, legal_name, tax_id
		FROM counterparties
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []*models.Counterparty
	byID := make(map[int64]*models.Counterparty)
	for rows.Next() {
		cp := &models.Counterparty{}
		err := rows.Scan(&cp.ID, &cp.Name, &cp.LegalName, &cp.TaxID)
		if err != nil {
			return nil, err
		}
		parties = append(parties, cp)
		byID[cp.ID] = cp
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	aliasQuery := `
		SELECT id, counterparty_id, name, tax_id, active
		FROM counterparty_aliases
		ORDER BY counterparty_id, id
	`
	aliasRows, err := r.db.QueryContext(ctx, aliasQuery)
	if err != nil {
		return nil, err
	}
	defer aliasRows.Close()

	for aliasRows.Next() {
		a := models.Alias{}
		err := aliasRows.Scan(&a.ID, &a.CounterpartyID, &a.Name, &a.TaxID, &a.Active)
		if err != nil {
			return nil, err
		}
		if cp, ok := byID[a.CounterpartyID]; ok {
			cp.Aliases = append(cp.Aliases, a)
		}
	}
	if err = aliasRows.Err(); err != nil {
		return nil, err
	}
	return parties, nil
}

func (r *counterpartyRepository) InsertAlias(ctx context.Context, tx *sql.Tx, a *models.Alias) error {
	query := `
		INSERT INTO counterparty_aliases (counterparty_id, name, tax_id, active)
		VALUES (?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query, a.CounterpartyID, a.Name, a.TaxID, a.Active)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *counterpartyRepository) listAliases(ctx context.Context, counterpartyID int64) ([]models.Alias, error) {
	query := `
		SELECT id, counterparty_id, name, tax_id, active
		FROM counterparty_aliases
		WHERE counterparty_id = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, counterpartyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []models.Alias
	for rows.Next() {
		a := models.Alias{}
		err := rows.Scan(&a.ID, &a.CounterpartyID, &a.Name, &a.TaxID, &a.Active)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return aliases, nil
}
