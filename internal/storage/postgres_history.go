package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/ride"
)

type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(dsn string) (*PostgresHistory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresHistory{db: db}, nil
}

func (p *PostgresHistory) Archive(ctx context.Context, r *ride.Ride) error {
	var driverID sql.NullString
	if r.Driver != nil {
		driverID = sql.NullString{String: r.Driver.ID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(id, pickup, dropoff, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			fare, distance, duration, status, driver_id, requested_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			driver_id = EXCLUDED.driver_id, updated_at = EXCLUDED.updated_at`,
		r.ID, r.Pickup, r.Dropoff, r.PickupLoc.Lat, r.PickupLoc.Lon, r.DropoffLoc.Lat, r.DropoffLoc.Lon,
		r.Fare, r.Distance, r.Duration, string(r.Status), driverID, r.RequestedAt, r.UpdatedAt)
	return err
}

func (p *PostgresHistory) Close() error { return p.db.Close() }
