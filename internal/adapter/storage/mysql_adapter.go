package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

const duplicateKeyErr = 1062 // MySQL ER_DUP_ENTRY

// MySQLUnitOfWorkStarter opens one transaction per unit of work.
//
// The DSN must set clientFoundRows=true: a commit that allocated nothing
// writes the product version unchanged, and the optimistic check needs the
// matched-row count, not the changed-row count.
type MySQLUnitOfWorkStarter struct {
	db *sql.DB
}

func NewMySQLUnitOfWorkStarter(db *sql.DB) *MySQLUnitOfWorkStarter {
	return &MySQLUnitOfWorkStarter{db: db}
}

func (s *MySQLUnitOfWorkStarter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &mysqlUnitOfWork{
		tx: tx,
		repo: &mysqlProductRepository{
			tx:             tx,
			seen:           make(map[string]*domain.Product),
			loadedVersions: make(map[string]int),
		},
	}, nil
}

type mysqlUnitOfWork struct {
	tx     *sql.Tx
	repo   *mysqlProductRepository
	done   bool
	events []domain.Event
}

func (u *mysqlUnitOfWork) Products() port.ProductRepository { return u.repo }

func (u *mysqlUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return port.ErrUnitOfWorkDone
	}

	for sku, product := range u.repo.seen {
		if err := u.repo.persist(ctx, product, u.repo.loadedVersions[sku]); err != nil {
			return err
		}
	}
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	u.done = true

	for _, product := range u.repo.seen {
		u.events = append(u.events, product.PullEvents()...)
	}
	return nil
}

func (u *mysqlUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func (u *mysqlUnitOfWork) Events() []domain.Event { return u.events }

// mysqlProductRepository loads whole aggregates and tracks everything it
// has handed out, so the unit of work can persist and drain them at commit.
type mysqlProductRepository struct {
	tx             *sql.Tx
	seen           map[string]*domain.Product
	loadedVersions map[string]int
}

const newProductVersion = -1 // sentinel: Add'ed this transaction, INSERT on commit

func (r *mysqlProductRepository) Add(ctx context.Context, p *domain.Product) error {
	r.seen[p.SKU] = p
	r.loadedVersions[p.SKU] = newProductVersion
	return nil
}

func (r *mysqlProductRepository) Get(ctx context.Context, sku string) (*domain.Product, error) {
	if p, ok := r.seen[sku]; ok {
		return p, nil
	}

	var version int
	err := r.tx.QueryRowContext(ctx,
		`SELECT version FROM products WHERE sku = ?`, sku,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	batches, err := r.loadBatches(ctx, sku)
	if err != nil {
		return nil, err
	}

	product := domain.NewProduct(sku, batches...)
	product.Version = version
	r.seen[sku] = product
	r.loadedVersions[sku] = version
	return product, nil
}

func (r *mysqlProductRepository) GetByBatchRef(ctx context.Context, ref string) (*domain.Product, error) {
	for _, p := range r.seen {
		for _, b := range p.Batches {
			if b.Reference == ref {
				return p, nil
			}
		}
	}

	var sku string
	err := r.tx.QueryRowContext(ctx,
		`SELECT sku FROM batches WHERE reference = ?`, ref,
	).Scan(&sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	return r.Get(ctx, sku)
}

func (r *mysqlProductRepository) loadBatches(ctx context.Context, sku string) ([]*domain.Batch, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT reference, purchased_quantity, eta
		FROM batches WHERE sku = ? ORDER BY reference`, sku)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	type batchRow struct {
		ref string
		qty int
		eta sql.NullTime
	}
	var batchRows []batchRow
	for rows.Next() {
		var br batchRow
		if err := rows.Scan(&br.ref, &br.qty, &br.eta); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batchRows = append(batchRows, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	var batches []*domain.Batch
	for _, br := range batchRows {
		lines, err := r.loadAllocations(ctx, br.ref)
		if err != nil {
			return nil, err
		}
		var eta *time.Time
		if br.eta.Valid {
			t := br.eta.Time
			eta = &t
		}
		batches = append(batches, domain.RehydrateBatch(br.ref, sku, br.qty, eta, lines))
	}
	return batches, nil
}

func (r *mysqlProductRepository) loadAllocations(ctx context.Context, batchRef string) ([]domain.OrderLine, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT order_id, sku, qty
		FROM allocations WHERE batch_reference = ? ORDER BY id`, batchRef)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.OrderID, &line.SKU, &line.Qty); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *mysqlProductRepository) persist(ctx context.Context, p *domain.Product, loadedVersion int) error {
	if loadedVersion == newProductVersion {
		if _, err := r.tx.ExecContext(ctx,
			`INSERT INTO products (sku, version) VALUES (?, ?)`, p.SKU, p.Version,
		); err != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateKeyErr {
				// another transaction created the product first
				return port.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert product: %w", err)
		}
	} else {
		result, err := r.tx.ExecContext(ctx,
			`UPDATE products SET version = ? WHERE sku = ? AND version = ?`,
			p.Version, p.SKU, loadedVersion,
		)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return port.ErrConcurrentUpdate
		}
	}

	for _, b := range p.Batches {
		var eta sql.NullTime
		if b.ETA != nil {
			eta = sql.NullTime{Time: *b.ETA, Valid: true}
		}
		if _, err := r.tx.ExecContext(ctx, `
			INSERT INTO batches (reference, sku, purchased_quantity, eta)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE purchased_quantity = VALUES(purchased_quantity), eta = VALUES(eta)`,
			b.Reference, b.SKU, b.PurchasedQty(), eta,
		); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}

		if _, err := r.tx.ExecContext(ctx,
			`DELETE FROM allocations WHERE batch_reference = ?`, b.Reference,
		); err != nil {
			return fmt.Errorf("clear allocations: %w", err)
		}
		for _, line := range b.Allocations() {
			if _, err := r.tx.ExecContext(ctx, `
				INSERT INTO allocations (batch_reference, order_id, sku, qty)
				VALUES (?, ?, ?, ?)`,
				b.Reference, line.OrderID, line.SKU, line.Qty,
			); err != nil {
				return fmt.Errorf("insert allocation: %w", err)
			}
		}
	}
	return nil
}

// EnsureSchema creates the allocation tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			sku VARCHAR(255) PRIMARY KEY,
			version INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			reference VARCHAR(255) PRIMARY KEY,
			sku VARCHAR(255) NOT NULL,
			purchased_quantity INT NOT NULL,
			eta DATE NULL,
			KEY idx_batches_sku (sku)
		)`,
		`CREATE TABLE IF NOT EXISTS allocations (
			id INT AUTO_INCREMENT PRIMARY KEY,
			batch_reference VARCHAR(255) NOT NULL,
			order_id VARCHAR(255) NOT NULL,
			sku VARCHAR(255) NOT NULL,
			qty INT NOT NULL,
			UNIQUE KEY uq_allocation (batch_reference, order_id, sku),
			KEY idx_allocations_batch (batch_reference)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
