package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yllvar/pool-odds/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// u64 fixed-point amounts are stored as NUMERIC and scanned through TEXT so
// the full range survives the round trip.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt numeric %q: %w", s, err)
	}
	return v, nil
}

type u64Field struct {
	dst *uint64
	src string
}

// parseU64Fields assigns a batch of TEXT-scanned NUMERIC columns, failing
// the whole scan on the first corrupt value.
func parseU64Fields(fields []u64Field) error {
	for _, f := range fields {
		v, err := parseU64(f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

const marketColumns = `id, creator, title, description, category, status,
	resolution_source, oracle_account, oracle_target_price,
	created_at, end_time, resolved_at, winning_outcome,
	yes_pool_id, no_pool_id, fee_rate_bp,
	bond_amount::TEXT, total_volume::TEXT, total_liquidity::TEXT,
	trader_count, lp_count`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	var oracleAccount *string
	var oracleTarget *string
	if m.Resolution.Oracle != nil {
		oracleAccount = &m.Resolution.Oracle.Account
		target := u64s(m.Resolution.Oracle.TargetPrice)
		oracleTarget = &target
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, creator, title, description, category, status,
		    resolution_source, oracle_account, oracle_target_price,
		    created_at, end_time, resolved_at, winning_outcome,
		    yes_pool_id, no_pool_id, fee_rate_bp,
		    bond_amount, total_volume, total_liquidity, trader_count, lp_count)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::NUMERIC,$10,$11,$12,$13,$14,$15,$16,
		    $17::NUMERIC,$18::NUMERIC,$19::NUMERIC,$20,$21)`,
		m.ID, m.Creator, m.Title, m.Description, m.Category, m.Status,
		m.Resolution.Source, oracleAccount, oracleTarget,
		m.CreatedAt, m.EndTime, m.ResolvedAt, m.WinningOutcome,
		m.YesPoolID, m.NoPoolID, m.FeeRateBp,
		u64s(m.BondAmount), u64s(m.TotalVolume), u64s(m.TotalLiquidity),
		m.TraderCount, m.LPCount,
	)
	return err
}

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var source string
	var oracleAccount, oracleTarget *string
	var winning *string
	var bond, volume, liquidity string

	err := row.Scan(&m.ID, &m.Creator, &m.Title, &m.Description, &m.Category, &m.Status,
		&source, &oracleAccount, &oracleTarget,
		&m.CreatedAt, &m.EndTime, &m.ResolvedAt, &winning,
		&m.YesPoolID, &m.NoPoolID, &m.FeeRateBp,
		&bond, &volume, &liquidity,
		&m.TraderCount, &m.LPCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Resolution.Source = model.ResolutionSource(source)
	if oracleAccount != nil && oracleTarget != nil {
		target, err := parseU64(*oracleTarget)
		if err != nil {
			return nil, err
		}
		m.Resolution.Oracle = &model.OracleBinding{
			Account:     *oracleAccount,
			TargetPrice: target,
		}
	}
	if winning != nil {
		outcome := model.Outcome(*winning)
		m.WinningOutcome = &outcome
	}
	if err := parseU64Fields([]u64Field{
		{&m.BondAmount, bond},
		{&m.TotalVolume, volume},
		{&m.TotalLiquidity, liquidity},
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET status = $2, resolved_at = $3, winning_outcome = $4,
		     yes_pool_id = $5, no_pool_id = $6, fee_rate_bp = $7,
		     total_volume = $8::NUMERIC, total_liquidity = $9::NUMERIC,
		     trader_count = $10, lp_count = $11
		 WHERE id = $1`,
		m.ID, m.Status, m.ResolvedAt, m.WinningOutcome,
		m.YesPoolID, m.NoPoolID, m.FeeRateBp,
		u64s(m.TotalVolume), u64s(m.TotalLiquidity),
		m.TraderCount, m.LPCount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const poolColumns = `id, market_id, outcome,
	base_reserves::TEXT, share_reserves::TEXT, lp_token_supply::TEXT,
	current_price::TEXT, fee_rate_bp, volume::TEXT, fees_collected::TEXT,
	last_update`

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, market_id, outcome, base_reserves, share_reserves,
		    lp_token_supply, current_price, fee_rate_bp, volume, fees_collected, last_update)
		 VALUES ($1,$2,$3,$4::NUMERIC,$5::NUMERIC,$6::NUMERIC,$7::NUMERIC,$8,
		    $9::NUMERIC,$10::NUMERIC,$11)`,
		p.ID, p.MarketID, p.Outcome,
		u64s(p.BaseReserves), u64s(p.ShareReserves), u64s(p.LPTokenSupply),
		u64s(p.CurrentPrice), p.FeeRateBp, u64s(p.Volume), u64s(p.FeesCollected),
		p.LastUpdate,
	)
	return err
}

func scanPool(row pgx.Row) (*model.Pool, error) {
	var p model.Pool
	var base, share, supply, price, volume, fees string

	err := row.Scan(&p.ID, &p.MarketID, &p.Outcome,
		&base, &share, &supply, &price, &p.FeeRateBp, &volume, &fees,
		&p.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := parseU64Fields([]u64Field{
		{&p.BaseReserves, base},
		{&p.ShareReserves, share},
		{&p.LPTokenSupply, supply},
		{&p.CurrentPrice, price},
		{&p.Volume, volume},
		{&p.FeesCollected, fees},
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPoolByOutcome(ctx context.Context, marketID string, outcome model.Outcome) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE market_id = $1 AND outcome = $2`,
		marketID, outcome)
	p, err := scanPool(row)
	if err != nil {
		return nil, fmt.Errorf("get pool %s/%s: %w", marketID, outcome, err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools
		 SET base_reserves = $2::NUMERIC, share_reserves = $3::NUMERIC,
		     lp_token_supply = $4::NUMERIC, current_price = $5::NUMERIC,
		     volume = $6::NUMERIC, fees_collected = $7::NUMERIC, last_update = $8
		 WHERE id = $1`,
		p.ID, u64s(p.BaseReserves), u64s(p.ShareReserves),
		u64s(p.LPTokenSupply), u64s(p.CurrentPrice),
		u64s(p.Volume), u64s(p.FeesCollected), p.LastUpdate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const positionColumns = `owner, market_id, outcome, shares::TEXT,
	average_price::TEXT, total_invested::TEXT, realized_pnl, created_at, last_update`

func scanPosition(row pgx.Row) (*model.Position, error) {
	var pos model.Position
	var shares, avg, invested string

	err := row.Scan(&pos.Owner, &pos.MarketID, &pos.Outcome,
		&shares, &avg, &invested, &pos.RealizedPnL, &pos.CreatedAt, &pos.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := parseU64Fields([]u64Field{
		{&pos.Shares, shares},
		{&pos.AveragePrice, avg},
		{&pos.TotalInvested, invested},
	}); err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, owner, marketID string, outcome model.Outcome) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE owner = $1 AND market_id = $2 AND outcome = $3`,
		owner, marketID, outcome)
	return scanPosition(row)
}

func (s *PostgresStore) PutPosition(ctx context.Context, pos *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (owner, market_id, outcome, shares, average_price,
		    total_invested, realized_pnl, created_at, last_update)
		 VALUES ($1,$2,$3,$4::NUMERIC,$5::NUMERIC,$6::NUMERIC,$7,$8,$9)
		 ON CONFLICT (owner, market_id, outcome) DO UPDATE
		 SET shares = EXCLUDED.shares, average_price = EXCLUDED.average_price,
		     total_invested = EXCLUDED.total_invested,
		     realized_pnl = EXCLUDED.realized_pnl,
		     last_update = EXCLUDED.last_update`,
		pos.Owner, pos.MarketID, pos.Outcome,
		u64s(pos.Shares), u64s(pos.AveragePrice), u64s(pos.TotalInvested),
		pos.RealizedPnL, pos.CreatedAt, pos.LastUpdate,
	)
	return err
}

func (s *PostgresStore) ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE owner = $1 ORDER BY market_id, outcome`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *pos)
	}
	return positions, rows.Err()
}

const liquidityColumns = `owner, pool_id, lp_tokens::TEXT,
	initial_base_deposit::TEXT, initial_share_deposit::TEXT, fees_earned::TEXT,
	created_at, last_update`

func scanLiquidityPosition(row pgx.Row) (*model.LiquidityPosition, error) {
	var lp model.LiquidityPosition
	var tokens, base, share, fees string

	err := row.Scan(&lp.Owner, &lp.PoolID, &tokens, &base, &share, &fees,
		&lp.CreatedAt, &lp.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := parseU64Fields([]u64Field{
		{&lp.LPTokens, tokens},
		{&lp.InitialBaseDeposit, base},
		{&lp.InitialShareDeposit, share},
		{&lp.FeesEarned, fees},
	}); err != nil {
		return nil, err
	}
	return &lp, nil
}

func (s *PostgresStore) GetLiquidityPosition(ctx context.Context, owner, poolID string) (*model.LiquidityPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+liquidityColumns+` FROM liquidity_positions
		 WHERE owner = $1 AND pool_id = $2`, owner, poolID)
	return scanLiquidityPosition(row)
}

func (s *PostgresStore) PutLiquidityPosition(ctx context.Context, lp *model.LiquidityPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO liquidity_positions (owner, pool_id, lp_tokens,
		    initial_base_deposit, initial_share_deposit, fees_earned,
		    created_at, last_update)
		 VALUES ($1,$2,$3::NUMERIC,$4::NUMERIC,$5::NUMERIC,$6::NUMERIC,$7,$8)
		 ON CONFLICT (owner, pool_id) DO UPDATE
		 SET lp_tokens = EXCLUDED.lp_tokens,
		     initial_base_deposit = EXCLUDED.initial_base_deposit,
		     initial_share_deposit = EXCLUDED.initial_share_deposit,
		     fees_earned = EXCLUDED.fees_earned,
		     last_update = EXCLUDED.last_update`,
		lp.Owner, lp.PoolID, u64s(lp.LPTokens),
		u64s(lp.InitialBaseDeposit), u64s(lp.InitialShareDeposit), u64s(lp.FeesEarned),
		lp.CreatedAt, lp.LastUpdate,
	)
	return err
}

func (s *PostgresStore) ListLiquidityPositionsByOwner(ctx context.Context, owner string) ([]model.LiquidityPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidityColumns+` FROM liquidity_positions
		 WHERE owner = $1 ORDER BY pool_id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LiquidityPosition
	for rows.Next() {
		lp, err := scanLiquidityPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetUser(ctx context.Context, authority string) (*model.User, error) {
	var u model.User
	var trades, volume, paid, earned string

	err := s.pool.QueryRow(ctx,
		`SELECT authority, markets_created, total_trades::TEXT, total_volume::TEXT,
		        total_fees_paid::TEXT, total_fees_earned::TEXT, total_realized_pnl,
		        created_at, last_activity
		 FROM users WHERE authority = $1`, authority).
		Scan(&u.Authority, &u.MarketsCreated, &trades, &volume, &paid, &earned,
			&u.TotalRealizedPnL, &u.CreatedAt, &u.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := parseU64Fields([]u64Field{
		{&u.TotalTrades, trades},
		{&u.TotalVolume, volume},
		{&u.TotalFeesPaid, paid},
		{&u.TotalFeesEarned, earned},
	}); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) PutUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (authority, markets_created, total_trades, total_volume,
		    total_fees_paid, total_fees_earned, total_realized_pnl, created_at, last_activity)
		 VALUES ($1,$2,$3::NUMERIC,$4::NUMERIC,$5::NUMERIC,$6::NUMERIC,$7,$8,$9)
		 ON CONFLICT (authority) DO UPDATE
		 SET markets_created = EXCLUDED.markets_created,
		     total_trades = EXCLUDED.total_trades,
		     total_volume = EXCLUDED.total_volume,
		     total_fees_paid = EXCLUDED.total_fees_paid,
		     total_fees_earned = EXCLUDED.total_fees_earned,
		     total_realized_pnl = EXCLUDED.total_realized_pnl,
		     last_activity = EXCLUDED.last_activity`,
		u.Authority, u.MarketsCreated,
		u64s(u.TotalTrades), u64s(u.TotalVolume),
		u64s(u.TotalFeesPaid), u64s(u.TotalFeesEarned),
		u.TotalRealizedPnL, u.CreatedAt, u.LastActivity,
	)
	return err
}
