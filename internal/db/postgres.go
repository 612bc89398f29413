package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS plans (
    plan_id TEXT PRIMARY KEY,
    provider_id TEXT NOT NULL,
    provider_name TEXT,
    title TEXT,
    scope TEXT,
    coverage TEXT[] NOT NULL DEFAULT '{}',
    data_mb DOUBLE PRECISION NOT NULL,
    cap_mode TEXT,
    validity_days DOUBLE PRECISION NOT NULL,
    regular_price DOUBLE PRECISION NOT NULL,
    promo_price DOUBLE PRECISION NULL,
    new_user_only BOOLEAN NOT NULL DEFAULT FALSE,
    can_top_up BOOLEAN NOT NULL DEFAULT FALSE,
    hassle_penalty_per_account DOUBLE PRECISION NULL,
    speed_limit_kbps DOUBLE PRECISION NOT NULL DEFAULT 0,
    reduced_speed_kbps DOUBLE PRECISION NOT NULL DEFAULT 0,
    possible_throttling BOOLEAN NOT NULL DEFAULT FALSE,
    tethering BOOLEAN NULL,
    ekyc BOOLEAN NOT NULL DEFAULT FALSE,
    subscription BOOLEAN NOT NULL DEFAULT FALSE,
    pay_as_you_go BOOLEAN NOT NULL DEFAULT FALSE,
    has_ads BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS provider_promos (
    provider_id TEXT PRIMARY KEY,
    name TEXT,
    promo_type TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_plans_provider_id ON plans (provider_id);
CREATE INDEX IF NOT EXISTS idx_plans_coverage ON plans USING GIN (coverage);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const planColumns = `plan_id, provider_id, provider_name, title, scope, coverage, data_mb, cap_mode,
    validity_days, regular_price, promo_price, new_user_only, can_top_up, hassle_penalty_per_account,
    speed_limit_kbps, reduced_speed_kbps, possible_throttling, tethering, ekyc, subscription,
    pay_as_you_go, has_ads`

// LoadPlans retrieves the active raw plan records. Normalization happens in
// the catalog package, so rows are returned as stored.
func (p *Postgres) LoadPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+planColumns+` FROM plans WHERE active ORDER BY plan_id`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var plans []models.Plan
	for rows.Next() {
		var pl models.Plan
		var providerName, title, scope, capMode sql.NullString
		var promo, hassle sql.NullFloat64
		var tethering sql.NullBool
		var coverage []string
		if err := rows.Scan(&pl.PlanID, &pl.ProviderID, &providerName, &title, &scope, pq.Array(&coverage),
			&pl.DataMB, &capMode, &pl.ValidityDays, &pl.RegularPrice, &promo, &pl.NewUserOnly, &pl.CanTopUp,
			&hassle, &pl.SpeedLimitKbps, &pl.ReducedSpeedKbps, &pl.PossibleThrottling, &tethering, &pl.EKYC,
			&pl.Subscription, &pl.PayAsYouGo, &pl.HasAds); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		pl.ProviderName = providerName.String
		pl.Title = title.String
		pl.Scope = scope.String
		pl.CapMode = capMode.String
		pl.Coverage = coverage
		if promo.Valid {
			pl.PromoPrice = models.Float(promo.Float64)
		}
		if hassle.Valid {
			pl.HasslePenaltyPerAccount = models.Float(hassle.Float64)
		}
		if tethering.Valid {
			pl.Tethering = models.Bool(tethering.Bool)
		}
		plans = append(plans, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return plans, nil
}

// UpsertPlans inserts or replaces plan records in a single transaction.
func (p *Postgres) UpsertPlans(ctx context.Context, plans []models.Plan) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert plans: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO plans (`+planColumns+`, active, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22, TRUE, NOW())
        ON CONFLICT (plan_id) DO UPDATE SET
            provider_id=EXCLUDED.provider_id, provider_name=EXCLUDED.provider_name, title=EXCLUDED.title,
            scope=EXCLUDED.scope, coverage=EXCLUDED.coverage, data_mb=EXCLUDED.data_mb,
            cap_mode=EXCLUDED.cap_mode, validity_days=EXCLUDED.validity_days,
            regular_price=EXCLUDED.regular_price, promo_price=EXCLUDED.promo_price,
            new_user_only=EXCLUDED.new_user_only, can_top_up=EXCLUDED.can_top_up,
            hassle_penalty_per_account=EXCLUDED.hassle_penalty_per_account,
            speed_limit_kbps=EXCLUDED.speed_limit_kbps, reduced_speed_kbps=EXCLUDED.reduced_speed_kbps,
            possible_throttling=EXCLUDED.possible_throttling, tethering=EXCLUDED.tethering,
            ekyc=EXCLUDED.ekyc, subscription=EXCLUDED.subscription, pay_as_you_go=EXCLUDED.pay_as_you_go,
            has_ads=EXCLUDED.has_ads, active=TRUE, updated_at=NOW()`)
	if err != nil {
		return fmt.Errorf("prepare upsert plans: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, pl := range plans {
		var promo, hassle sql.NullFloat64
		var tethering sql.NullBool
		if pl.PromoPrice != nil {
			promo = sql.NullFloat64{Float64: *pl.PromoPrice, Valid: true}
		}
		if pl.HasslePenaltyPerAccount != nil {
			hassle = sql.NullFloat64{Float64: *pl.HasslePenaltyPerAccount, Valid: true}
		}
		if pl.Tethering != nil {
			tethering = sql.NullBool{Bool: *pl.Tethering, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, pl.PlanID, pl.ProviderID, pl.ProviderName, pl.Title, pl.Scope,
			pq.Array(pl.Coverage), pl.DataMB, pl.CapMode, pl.ValidityDays, pl.RegularPrice, promo,
			pl.NewUserOnly, pl.CanTopUp, hassle, pl.SpeedLimitKbps, pl.ReducedSpeedKbps,
			pl.PossibleThrottling, tethering, pl.EKYC, pl.Subscription, pl.PayAsYouGo, pl.HasAds); err != nil {
			return fmt.Errorf("upsert plan %s: %w", pl.PlanID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert plans: %w", err)
	}
	return nil
}

// DeactivatePlan hides a plan from future loads without deleting its row.
func (p *Postgres) DeactivatePlan(ctx context.Context, planID string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE plans SET active=FALSE, updated_at=NOW() WHERE plan_id=$1`, planID)
	if err != nil {
		return fmt.Errorf("deactivate plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deactivate plan %s: %w", planID, models.ErrNotFound)
	}
	return nil
}

// LoadPromoClassifications returns the provider promo table keyed by provider ID.
func (p *Postgres) LoadPromoClassifications(ctx context.Context) (map[string]catalog.ProviderPromo, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT provider_id, name, promo_type FROM provider_promos`)
	if err != nil {
		return nil, fmt.Errorf("query provider promos: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	out := make(map[string]catalog.ProviderPromo)
	for rows.Next() {
		var id string
		var name sql.NullString
		var pp catalog.ProviderPromo
		if err := rows.Scan(&id, &name, &pp.PromoType); err != nil {
			return nil, fmt.Errorf("scan provider promo: %w", err)
		}
		pp.Name = name.String
		out[id] = pp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// UpsertPromoClassification stores one provider classification.
func (p *Postgres) UpsertPromoClassification(ctx context.Context, providerID string, pp catalog.ProviderPromo) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO provider_promos (provider_id, name, promo_type, updated_at)
        VALUES ($1,$2,$3,NOW())
        ON CONFLICT (provider_id) DO UPDATE SET name=EXCLUDED.name, promo_type=EXCLUDED.promo_type, updated_at=NOW()`,
		providerID, pp.Name, pp.PromoType)
	if err != nil {
		return fmt.Errorf("upsert provider promo: %w", err)
	}
	return nil
}
