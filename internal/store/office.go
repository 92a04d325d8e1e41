package store

import "database/sql"

// ListRegions returns all regions ordered by name. The selection flow builds
// its first-level menu from this.
func (db *DB) ListRegions() ([]Region, error) {
	rows, err := db.Query(`SELECT id, code, name FROM regions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var regions []Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.ID, &r.Code, &r.Name); err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// GetRegion returns a region by id, or nil if none exists.
func (db *DB) GetRegion(id string) (*Region, error) {
	var r Region
	err := db.QueryRow(`SELECT id, code, name FROM regions WHERE id = ?`, id).
		Scan(&r.ID, &r.Code, &r.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOffices returns the offices within a region ordered by name.
func (db *DB) ListOffices(regionID string) ([]Office, error) {
	rows, err := db.Query(`
		SELECT id, region_id, company_id, name, address
		FROM offices
		WHERE region_id = ?
		ORDER BY name`, regionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var offices []Office
	for rows.Next() {
		var o Office
		if err := rows.Scan(&o.ID, &o.RegionID, &o.CompanyID, &o.Name, &o.Address); err != nil {
			return nil, err
		}
		offices = append(offices, o)
	}
	return offices, rows.Err()
}

// GetOffice returns an office by id, or nil if none exists.
func (db *DB) GetOffice(id string) (*Office, error) {
	var o Office
	err := db.QueryRow(`SELECT id, region_id, company_id, name, address FROM offices WHERE id = ?`, id).
		Scan(&o.ID, &o.RegionID, &o.CompanyID, &o.Name, &o.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
