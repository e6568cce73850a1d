package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/database"
)

// GetEmployee returns the employee with a derived has_facial_reference flag.
func (r *Repository) GetEmployee(ctx context.Context, employeeID string) (*database.Employee, error) {
	query := `
		SELECT e.id, e.full_name, e.is_active,
		       EXISTS(SELECT 1 FROM facial_references f WHERE f.employee_id = e.id) AS has_facial_reference
		FROM employees e
		WHERE e.id = $1
	`
	var emp database.Employee
	if err := getOne(ctx, r.pool.db, &emp, query, employeeID); err != nil {
		return nil, fmt.Errorf("get employee %s: %w", employeeID, err)
	}
	return &emp, nil
}

// HasFacialReference checks whether any reference embedding is enrolled.
func (r *Repository) HasFacialReference(ctx context.Context, employeeID string) (bool, error) {
	var exists bool
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM facial_references WHERE employee_id = $1)", employeeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check facial reference: %w", mapError(err))
	}
	return exists, nil
}

// ActiveWorkLocations returns active locations ordered by name.
func (r *Repository) ActiveWorkLocations(ctx context.Context) ([]database.WorkLocation, error) {
	query := `
		SELECT id, name, type, latitude, longitude, radius_meters, is_active
		FROM work_locations
		WHERE is_active
		ORDER BY name, id
	`
	var locations []database.WorkLocation
	if err := r.pool.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("query work locations: %w", mapError(err))
	}
	return locations, nil
}

// GeofencingPolicy returns the stored policy, or a disabled policy with the
// configured default radius when the settings row does not exist.
func (r *Repository) GeofencingPolicy(ctx context.Context) (database.GeofencingPolicy, error) {
	var policy database.GeofencingPolicy
	err := getOne(ctx, r.pool.db, &policy,
		"SELECT enabled, default_radius_meters FROM geofencing_settings WHERE id = 1")
	if errors.Is(err, database.ErrNotFound) {
		return database.GeofencingPolicy{DefaultRadiusMeters: r.defaultRadius}, nil
	}
	if err != nil {
		return database.GeofencingPolicy{}, fmt.Errorf("get geofencing policy: %w", err)
	}
	return policy, nil
}

// WorkSchedule returns the employee schedule or nil when none is configured.
func (r *Repository) WorkSchedule(ctx context.Context, employeeID string) (*database.WorkSchedule, error) {
	query := `
		SELECT employee_id,
		       to_char(clock_in_time, 'HH24:MI') AS clock_in_time,
		       COALESCE(to_char(clock_out_time, 'HH24:MI'), '') AS clock_out_time,
		       COALESCE(to_char(break_start_time, 'HH24:MI'), '') AS break_start_time,
		       COALESCE(to_char(break_end_time, 'HH24:MI'), '') AS break_end_time,
		       tolerance_minutes
		FROM work_schedules
		WHERE employee_id = $1
	`
	var s database.WorkSchedule
	err := getOne(ctx, r.pool.db, &s, query, employeeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work schedule: %w", err)
	}
	return &s, nil
}
