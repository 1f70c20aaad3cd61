package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	model "github.com/glkeru/gamification/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

type LedgerDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerDB(logger *zap.Logger) (db *LedgerDB, err error) {
	// config
	purl := os.Getenv("LEDGER_DB")
	if purl == "" {
		return nil, fmt.Errorf("env LEDGER_DB is not set")
	}
	port := os.Getenv("LEDGER_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PORT is not set")
	}
	user := os.Getenv("LEDGER_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env LEDGER_DB_USER is not set")
	}
	password := os.Getenv("LEDGER_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PASSWORD is not set")
	}
	database := os.Getenv("LEDGER_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env LEDGER_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	return &LedgerDB{pool, logger}, err
}

func (l *LedgerDB) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return model.Balance{}, fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	bal := model.Balance{UserID: userID, Multiplier: 1}
	var last pgtype.Timestamptz
	row := conn.QueryRow(ctx,
		"SELECT total, available, current_streak, longest_streak, multiplier, vip, optout, last_activity, version FROM balances WHERE userid = $1",
		userID)
	err = row.Scan(&bal.TotalPoints, &bal.AvailablePoints, &bal.CurrentStreak, &bal.LongestStreak,
		&bal.Multiplier, &bal.VIP, &bal.OptOut, &last, &bal.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// zero state on first access
			return l.createBalance(ctx, userID)
		}
		return model.Balance{}, fmt.Errorf("balance %s: %w: %w", userID, model.ErrPersistence, err)
	}
	bal.LastActivityAt = last.Time
	return bal, nil
}

func (l *LedgerDB) createBalance(ctx context.Context, userID string) (model.Balance, error) {
	bal := model.Balance{UserID: userID, Multiplier: 1}

	sql, args, err := sq.Insert("balances").
		Columns("userid", "total", "available", "current_streak", "longest_streak", "multiplier", "vip", "optout", "version").
		Values(userID, 0, 0, 0, 0, 1.0, false, false, 0).
		Suffix("ON CONFLICT (userid) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.Balance{}, err
	}

	_, err = l.pool.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return model.Balance{}, fmt.Errorf("create balance %s: %w: %w", userID, model.ErrPersistence, err)
	}
	return bal, nil
}

// Commit writes the updated balance and appends the transaction in one SQL
// transaction. The balance row is locked for the duration, the version
// predicate rejects writes racing past the in-process lock.
func (l *LedgerDB) Commit(ctx context.Context, balance model.Balance, tnx model.Transaction) (err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w: %w", model.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// lock the balance row
	var version int64
	row := tx.QueryRow(ctx, "SELECT version FROM balances WHERE userid = $1 FOR UPDATE", balance.UserID)
	err = row.Scan(&version)
	if err != nil {
		return fmt.Errorf("lock balance %s: %w: %w", balance.UserID, model.ErrPersistence, err)
	}
	if version != balance.Version-1 {
		err = fmt.Errorf("balance %s version %d, have %d: %w", balance.UserID, balance.Version, version, model.ErrPersistence)
		return err
	}

	sql, args, err := sq.Update("balances").
		Set("total", balance.TotalPoints).
		Set("available", balance.AvailablePoints).
		Set("current_streak", balance.CurrentStreak).
		Set("longest_streak", balance.LongestStreak).
		Set("multiplier", balance.Multiplier).
		Set("vip", balance.VIP).
		Set("optout", balance.OptOut).
		Set("last_activity", balance.LastActivityAt).
		Set("version", balance.Version).
		Where(sq.Eq{"userid": balance.UserID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return fmt.Errorf("update balance %s: %w: %w", balance.UserID, model.ErrPersistence, err)
	}

	tnxContext, err := json.Marshal(tnx.Context)
	if err != nil {
		return err
	}
	sql, args, err = sq.Insert("transactions").
		Columns("id", "userid", "actiontype", "delta", "balance_after", "available_after", "operation_id", "context", "created_at").
		Values(tnx.ID, tnx.UserID, tnx.ActionType, tnx.PointsDelta, tnx.BalanceAfter, tnx.AvailableAfter, tnx.OperationID, tnxContext, tnx.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("operation %s: %w", tnx.OperationID, model.ErrDuplicate)
		}
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return fmt.Errorf("append transaction: %w: %w", model.ErrPersistence, err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("commit: %w: %w", model.ErrPersistence, err)
	}
	return nil
}

func (l *LedgerDB) GetByOperation(ctx context.Context, operationID string) (model.Transaction, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx,
		"SELECT id, userid, actiontype, delta, balance_after, available_after, operation_id, context, created_at FROM transactions WHERE operation_id = $1",
		operationID)
	tnx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, fmt.Errorf("operation %s: %w", operationID, model.ErrNotFound)
		}
		return model.Transaction{}, fmt.Errorf("operation %s: %w: %w", operationID, model.ErrPersistence, err)
	}
	return tnx, nil
}

func (l *LedgerDB) ListTransactions(ctx context.Context, userID string, from, to time.Time) (tnxs []model.Transaction, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	sql, args, err := sq.Select("id", "userid", "actiontype", "delta", "balance_after", "available_after", "operation_id", "context", "created_at").
		From("transactions").
		Where(sq.Eq{"userid": userID}).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.LtOrEq{"created_at": to}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("transactions %s: %w: %w", userID, model.ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		tnx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("transactions %s: %w: %w", userID, model.ErrPersistence, err)
		}
		tnxs = append(tnxs, tnx)
	}
	return tnxs, nil
}

func (l *LedgerDB) CountTransactions(ctx context.Context, userID string, actionType string) (count int64, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE userid = $1 AND actiontype = $2", userID, actionType)
	err = row.Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w: %w", userID, model.ErrPersistence, err)
	}
	return count, nil
}

func (l *LedgerDB) UpdateStreak(ctx context.Context, userID string, current, longest int, at time.Time) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	sql, args, err := sq.Update("balances").
		Set("current_streak", current).
		Set("longest_streak", longest).
		Set("last_activity", at).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"userid": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, sql, args...)
	if err != nil {
		l.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return fmt.Errorf("update streak %s: %w: %w", userID, model.ErrPersistence, err)
	}
	return nil
}

func (l *LedgerDB) Scores(ctx context.Context, category string, since time.Time) (scores []model.Score, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w: %w", model.ErrPersistence, err)
	}
	defer conn.Release()

	builder := sq.Select("t.userid", "SUM(t.delta) AS score", "MAX(t.created_at) AS reached", "b.optout").
		From("transactions t").
		Join("balances b ON b.userid = t.userid").
		Where(sq.GtOrEq{"t.created_at": since}).
		GroupBy("t.userid", "b.optout")
	if category != model.CategoryOverall {
		builder = builder.Where(sq.Eq{"t.actiontype": category})
	}
	sql, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("scores %s: %w: %w", category, model.ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.Score
		err = rows.Scan(&s.UserID, &s.Score, &s.ReachedAt, &s.OptOut)
		if err != nil {
			return nil, fmt.Errorf("scores %s: %w: %w", category, model.ErrPersistence, err)
		}
		scores = append(scores, s)
	}
	return scores, nil
}

func (l *LedgerDB) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var tnx model.Transaction
	var id pgtype.UUID
	var tnxContext []byte
	err := row.Scan(&id, &tnx.UserID, &tnx.ActionType, &tnx.PointsDelta, &tnx.BalanceAfter,
		&tnx.AvailableAfter, &tnx.OperationID, &tnxContext, &tnx.CreatedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	tnx.ID, _ = uuid.FromBytes(id.Bytes[:])
	if len(tnxContext) > 0 {
		_ = json.Unmarshal(tnxContext, &tnx.Context)
	}
	return tnx, nil
}
