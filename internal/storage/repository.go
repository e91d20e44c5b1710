package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/campusnav/internal/campus"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads and writes campus POIs. Coordinates travel as text in
// both directions; parsing and validation belong to the campus package.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

const commonColumns = `id, name, description, COALESCE(latitude, ''), COALESCE(longitude, ''), region, category, images`

// List returns every POI of the given kind, ordered by name.
func (r *Repository) List(ctx context.Context, kind campus.Kind) ([]*campus.POI, error) {
	switch kind {
	case campus.KindBuilding:
		return r.ListBuildings(ctx)
	case campus.KindRoom:
		return r.ListRooms(ctx)
	case campus.KindFacility:
		return r.ListFacilities(ctx)
	default:
		return nil, fmt.Errorf("listing pois: unsupported kind %s", kind)
	}
}

// ListBuildings returns every building.
func (r *Repository) ListBuildings(ctx context.Context) ([]*campus.POI, error) {
	q := `SELECT ` + commonColumns + `, code, floors FROM buildings ORDER BY name`
	return r.list(ctx, "buildings", q, func(row pgx.Rows) (*campus.POI, error) {
		var a campus.Attributes
		var info campus.BuildingInfo
		if err := row.Scan(append(attrTargets(&a), &info.Code, &info.Floors)...); err != nil {
			return nil, err
		}
		return campus.NewBuilding(a, info), nil
	})
}

// ListRooms returns every room.
func (r *Repository) ListRooms(ctx context.Context) ([]*campus.POI, error) {
	q := `SELECT ` + commonColumns + `, building_id, floor, capacity FROM rooms ORDER BY name`
	return r.list(ctx, "rooms", q, func(row pgx.Rows) (*campus.POI, error) {
		var a campus.Attributes
		var info campus.RoomInfo
		if err := row.Scan(append(attrTargets(&a), &info.BuildingID, &info.Floor, &info.Capacity)...); err != nil {
			return nil, err
		}
		return campus.NewRoom(a, info), nil
	})
}

// ListFacilities returns every facility.
func (r *Repository) ListFacilities(ctx context.Context) ([]*campus.POI, error) {
	q := `SELECT ` + commonColumns + `, opening_hours, phone FROM facilities ORDER BY name`
	return r.list(ctx, "facilities", q, func(row pgx.Rows) (*campus.POI, error) {
		var a campus.Attributes
		var info campus.FacilityInfo
		if err := row.Scan(append(attrTargets(&a), &info.OpeningHours, &info.Phone)...); err != nil {
			return nil, err
		}
		return campus.NewFacility(a, info), nil
	})
}

func attrTargets(a *campus.Attributes) []any {
	return []any{&a.ID, &a.Name, &a.Description, &a.Latitude, &a.Longitude, &a.Region, &a.Category, &a.Images}
}

func (r *Repository) list(ctx context.Context, table, q string, scan func(pgx.Rows) (*campus.POI, error)) ([]*campus.POI, error) {
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var results []*campus.POI
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		results = append(results, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", table, err)
	}

	return results, nil
}

// UpsertPOI inserts or updates a POI in the table matching its kind.
func (r *Repository) UpsertPOI(ctx context.Context, p *campus.POI) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("upserting poi: missing id")
	}

	images := p.Images
	if images == nil {
		images = []string{}
	}
	args := []any{p.ID, p.Name, p.Description, nullable(p.Latitude), nullable(p.Longitude), p.Region, p.Category, images}

	var q string
	switch {
	case p.Kind == campus.KindBuilding && p.Building != nil:
		q = `
			INSERT INTO buildings (id, name, description, latitude, longitude, region, category, images, code, floors, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description,
			    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			    region = EXCLUDED.region, category = EXCLUDED.category, images = EXCLUDED.images,
			    code = EXCLUDED.code, floors = EXCLUDED.floors, updated_at = EXCLUDED.updated_at
		`
		args = append(args, p.Building.Code, p.Building.Floors)
	case p.Kind == campus.KindRoom && p.Room != nil:
		q = `
			INSERT INTO rooms (id, name, description, latitude, longitude, region, category, images, building_id, floor, capacity, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description,
			    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			    region = EXCLUDED.region, category = EXCLUDED.category, images = EXCLUDED.images,
			    building_id = EXCLUDED.building_id, floor = EXCLUDED.floor, capacity = EXCLUDED.capacity,
			    updated_at = EXCLUDED.updated_at
		`
		args = append(args, p.Room.BuildingID, p.Room.Floor, p.Room.Capacity)
	case p.Kind == campus.KindFacility && p.Facility != nil:
		q = `
			INSERT INTO facilities (id, name, description, latitude, longitude, region, category, images, opening_hours, phone, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description,
			    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			    region = EXCLUDED.region, category = EXCLUDED.category, images = EXCLUDED.images,
			    opening_hours = EXCLUDED.opening_hours, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
		`
		args = append(args, p.Facility.OpeningHours, p.Facility.Phone)
	default:
		return fmt.Errorf("upserting poi %s: kind %s has no matching details", p.ID, p.Kind)
	}

	if _, err := r.q.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("upserting %s %s: %w", p.Kind, p.ID, err)
	}

	return nil
}

// nullable stores empty coordinate strings as NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
