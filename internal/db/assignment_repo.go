package db

import (
	"context"

	"weatherproof/internal/types"
)

// AssignmentRepository provides data access for the crew_assignments and
// equipment_assignments tables, which carry the rate data needed to price a
// delay window.
type AssignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository creates a new AssignmentRepository backed by the
// given database connection (pool or transaction).
func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// CrewForProject retrieves the crew assignments for a project.
func (r *AssignmentRepository) CrewForProject(ctx context.Context, projectID string) ([]types.CrewAssignment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.crew_member_id, c.name, c.rate, c.rate_type,
			c.burden_multiplier, c.hours_idled
		 FROM crew_assignments c
		 WHERE c.project_id = $1
		 ORDER BY c.crew_member_id`,
		projectID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list crew assignments", err)
	}
	defer rows.Close()

	var results []types.CrewAssignment
	for rows.Next() {
		var c types.CrewAssignment
		if err := rows.Scan(
			&c.CrewMemberID,
			&c.Name,
			&c.Rate,
			&c.RateType,
			&c.BurdenMultiplier,
			&c.HoursIdled,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan crew assignment row", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating crew assignment rows", err)
	}

	return results, nil
}

// EquipmentForProject retrieves the equipment assignments for a project.
func (r *AssignmentRepository) EquipmentForProject(ctx context.Context, projectID string) ([]types.EquipmentAssignment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.equipment_id, e.name, e.ownership,
			e.rate, e.rate_type, e.standby_rate, e.hours_idled
		 FROM equipment_assignments e
		 WHERE e.project_id = $1
		 ORDER BY e.equipment_id`,
		projectID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list equipment assignments", err)
	}
	defer rows.Close()

	var results []types.EquipmentAssignment
	for rows.Next() {
		var e types.EquipmentAssignment
		if err := rows.Scan(
			&e.EquipmentID,
			&e.Name,
			&e.Ownership,
			&e.Rate,
			&e.RateType,
			&e.StandbyRate,
			&e.HoursIdled,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan equipment assignment row", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating equipment assignment rows", err)
	}

	return results, nil
}
