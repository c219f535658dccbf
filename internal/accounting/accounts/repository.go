package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/core-ledger/internal/platform/db"
)

// Repository persists accounts. Every method is scoped to a tenant.
type Repository interface {
	Create(ctx context.Context, data CreateAccountData) (Account, error)
	FindByID(ctx context.Context, tenantID string, id int64) (Account, error)
	FindByCode(ctx context.Context, tenantID, code string) (Account, error)
	FindChildren(ctx context.Context, tenantID string, parentID int64) ([]Account, error)
	FindHierarchy(ctx context.Context, tenantID string) ([]Account, error)
	Search(ctx context.Context, tenantID, query string, filters SearchFilters) ([]Account, error)
	Update(ctx context.Context, tenantID string, id int64, patch UpdateAccountData) (Account, error)
	Archive(ctx context.Context, tenantID string, id int64, updatedBy string) (Account, error)
	Reparent(ctx context.Context, tenantID string, id int64, newParentID *int64, updatedBy string) (Account, error)
	HasChildren(ctx context.Context, tenantID string, id int64) (bool, error)
}

// IntegritySource exposes the cross-tenant reads used by the integrity scan.
type IntegritySource interface {
	ListTenants(ctx context.Context) ([]string, error)
	FindAll(ctx context.Context, tenantID string) ([]Account, error)
}

const uniqueTenantCodeIndex = "accounts_tenant_code_key"

const accountColumns = `id, tenant_id, code, name, parent_id, account_type, normal_balance, currency,
	is_active, allow_posting, level, effective_start_date, effective_end_date,
	created_at, created_by, updated_at, updated_by`

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// PostgresRepository implements Repository and IntegritySource.
type PostgresRepository interface {
	Repository
	IntegritySource
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) PostgresRepository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) withTx(ctx context.Context, fn func(*repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Create(ctx context.Context, data CreateAccountData) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (
		tenant_id, code, name, parent_id, account_type, normal_balance, currency,
		is_active, allow_posting, level, created_by, updated_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,$8,$9,$10,$11)
	RETURNING `+accountColumns,
		data.TenantID, data.Code, data.Name, data.ParentID, string(data.Type), string(data.NormalBalance),
		data.Currency, data.AllowPosting, data.Level, data.CreatedBy, data.UpdatedBy,
	)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, mapWriteError(err)
	}
	return account, nil
}

func (r *repository) FindByID(ctx context.Context, tenantID string, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanOne(row)
}

func (r *repository) FindByCode(ctx context.Context, tenantID, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 AND code = $2`, tenantID, code)
	return scanOne(row)
}

func (r *repository) FindChildren(ctx context.Context, tenantID string, parentID int64) ([]Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE tenant_id = $1 AND parent_id = $2 ORDER BY code`, tenantID, parentID)
}

func (r *repository) FindHierarchy(ctx context.Context, tenantID string) ([]Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE tenant_id = $1 AND is_active = TRUE ORDER BY level, code`, tenantID)
}

func (r *repository) FindAll(ctx context.Context, tenantID string) ([]Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE tenant_id = $1 ORDER BY level, code`, tenantID)
}

func (r *repository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (r *repository) Search(ctx context.Context, tenantID, query string, filters SearchFilters) ([]Account, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if query != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+likeEscaper.Replace(query)+"%")
		argPos++
	}
	if filters.AccountType != nil {
		conditions = append(conditions, fmt.Sprintf("account_type = $%d", argPos))
		args = append(args, string(*filters.AccountType))
		argPos++
	}
	if filters.Currency != nil {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", argPos))
		args = append(args, *filters.Currency)
		argPos++
	}
	active := true
	if filters.IsActive != nil {
		active = *filters.IsActive
	}
	conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
	args = append(args, active)
	argPos++
	if filters.AllowPosting != nil {
		conditions = append(conditions, fmt.Sprintf("allow_posting = $%d", argPos))
		args = append(args, *filters.AllowPosting)
	}

	sql := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY code`
	return r.list(ctx, sql, args...)
}

func (r *repository) Update(ctx context.Context, tenantID string, id int64, patch UpdateAccountData) (Account, error) {
	sets := []string{"updated_at = NOW()", "updated_by = $3"}
	args := []interface{}{tenantID, id, patch.UpdatedBy}
	argPos := 4

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if patch.Code.Set {
		add("code", patch.Code.Value)
	}
	if patch.Name.Set {
		add("name", patch.Name.Value)
	}
	if patch.Type.Set {
		add("account_type", string(patch.Type.Value))
	}
	if patch.NormalBalance.Set {
		add("normal_balance", string(patch.NormalBalance.Value))
	}
	if patch.Currency.Set {
		add("currency", patch.Currency.Value)
	}
	if patch.AllowPosting.Set {
		add("allow_posting", patch.AllowPosting.Value)
	}

	row := r.db.QueryRow(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+`
		WHERE tenant_id = $1 AND id = $2 RETURNING `+accountColumns, args...)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, mapWriteError(err)
	}
	return account, nil
}

func (r *repository) Archive(ctx context.Context, tenantID string, id int64, updatedBy string) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts
		SET is_active = FALSE, effective_end_date = NOW(), updated_at = NOW(), updated_by = $3
		WHERE tenant_id = $1 AND id = $2 RETURNING `+accountColumns, tenantID, id, updatedBy)
	return scanOne(row)
}

// Reparent moves the account and recomputes the level of its whole subtree
// in one transaction.
func (r *repository) Reparent(ctx context.Context, tenantID string, id int64, newParentID *int64, updatedBy string) (Account, error) {
	var moved Account
	err := r.withTx(ctx, func(tx *repository) error {
		var current int
		err := tx.db.QueryRow(ctx, `SELECT level FROM accounts WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		level := 1
		if newParentID != nil {
			var parentLevel int
			err := tx.db.QueryRow(ctx, `SELECT level FROM accounts WHERE tenant_id = $1 AND id = $2`, tenantID, *newParentID).Scan(&parentLevel)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			level = parentLevel + 1
		}

		var subtreeDepth int
		err = tx.db.QueryRow(ctx, `WITH RECURSIVE subtree AS (
			SELECT id, 0 AS depth FROM accounts WHERE tenant_id = $1 AND id = $2
			UNION ALL
			SELECT a.id, s.depth + 1 FROM accounts a
			JOIN subtree s ON a.parent_id = s.id
			WHERE a.tenant_id = $1 AND s.depth < $3
		) SELECT COALESCE(MAX(depth), 0) FROM subtree`, tenantID, id, maxAncestorWalk).Scan(&subtreeDepth)
		if err != nil {
			return err
		}
		if level+subtreeDepth > MaxHierarchyDepth {
			return ErrDepthExceeded
		}

		if _, err := tx.db.Exec(ctx, `UPDATE accounts SET parent_id = $3, updated_at = NOW(), updated_by = $4
			WHERE tenant_id = $1 AND id = $2`, tenantID, id, newParentID, updatedBy); err != nil {
			return err
		}
		if _, err := tx.db.Exec(ctx, `WITH RECURSIVE subtree AS (
			SELECT id, 0 AS depth FROM accounts WHERE tenant_id = $1 AND id = $2
			UNION ALL
			SELECT a.id, s.depth + 1 FROM accounts a
			JOIN subtree s ON a.parent_id = s.id
			WHERE a.tenant_id = $1 AND s.depth < $4
		)
		UPDATE accounts a SET level = $3 + subtree.depth
		FROM subtree WHERE a.tenant_id = $1 AND a.id = subtree.id`, tenantID, id, level, maxAncestorWalk); err != nil {
			return err
		}

		moved, err = tx.FindByID(ctx, tenantID, id)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return moved, nil
}

func (r *repository) HasChildren(ctx context.Context, tenantID string, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM accounts WHERE tenant_id = $1 AND parent_id = $2 AND is_active = TRUE
	)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (r *repository) list(ctx context.Context, sql string, args ...interface{}) ([]Account, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanOne(row pgx.Row) (Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a             Account
		accountType   string
		normalBalance string
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Code, &a.Name, &a.ParentID, &accountType, &normalBalance, &a.Currency,
		&a.IsActive, &a.AllowPosting, &a.Level, &a.EffectiveStartDate, &a.EffectiveEndDate,
		&a.CreatedAt, &a.CreatedBy, &a.UpdatedAt, &a.UpdatedBy,
	)
	if err != nil {
		return Account{}, err
	}
	a.Type = AccountType(accountType)
	a.NormalBalance = NormalBalance(normalBalance)
	return a, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == uniqueTenantCodeIndex {
		return ErrDuplicateCode
	}
	return err
}
