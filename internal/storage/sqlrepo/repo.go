package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"barefoot_sync/internal/domain"
)

const (
	snapshotRates        = "rates"
	snapshotAvailability = "availability"

	defaultLimit = 20
	maxLimit     = 100
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}
func nullF64(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

// Repo implements domain.PropertyStore over database/sql. The same
// statements run on sqlite and mysql.
type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

// WithClock overrides the timestamp source.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

func (r *Repo) ts() time.Time { return r.now().UTC() }

func propertyArgs(p domain.Property) []any {
	amen, _ := json.Marshal(nonNil(p.Amenities))
	loc := p.Location
	return []any{
		p.RemoteID,
		p.Title,
		valStr(p.Description),
		valStr(p.PropertyType),
		valStr(p.Status),
		valStr(loc.Street),
		valStr(loc.Street2),
		valStr(loc.City),
		valStr(loc.State),
		valStr(loc.Zip),
		valStr(loc.Country),
		valStr(loc.CountryCode),
		valStr(loc.Region),
		valStr(loc.Display),
		valF64(loc.Lat),
		valF64(loc.Lon),
		string(amen),
		valF64(p.MinPrice),
		valF64(p.MaxPrice),
		valInt(p.Occupancy),
		valInt(p.Bedrooms),
		valInt(p.Bathrooms),
		valStr(p.ContactPhone),
		valJSON(p.RawFields),
		p.Checksum,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *Repo) FindByRemoteID(ctx context.Context, remoteID string) (domain.LocalProperty, error) {
	row := r.db.QueryRowContext(ctx, selectLocalSQL, remoteID)

	var (
		lp                                                  domain.LocalProperty
		desc, ptype, status                                 sql.NullString
		street, street2, city, state, zip, country, cc, reg sql.NullString
		display, phone, raw                                 sql.NullString
		lat, lon, minP, maxP                                sql.NullFloat64
		occ, beds, baths                                    sql.NullInt64
		amenities                                           string
	)
	if err := row.Scan(
		&lp.ID, &lp.PublishState,
		&lp.RemoteID, &lp.Title, &desc, &ptype, &status,
		&street, &street2, &city, &state, &zip, &country, &cc, &reg, &display,
		&lat, &lon, &amenities, &minP, &maxP, &occ, &beds, &baths,
		&phone, &raw, &lp.Checksum,
		&lp.CreatedAt, &lp.UpdatedAt, &lp.LastSyncedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LocalProperty{}, domain.ErrNotFound
		}
		return domain.LocalProperty{}, err
	}

	lp.Description, lp.PropertyType, lp.Status = nullStr(desc), nullStr(ptype), nullStr(status)
	lp.Location = domain.Location{
		Street:      nullStr(street),
		Street2:     nullStr(street2),
		City:        nullStr(city),
		State:       nullStr(state),
		Zip:         nullStr(zip),
		Country:     nullStr(country),
		CountryCode: nullStr(cc),
		Region:      nullStr(reg),
		Display:     nullStr(display),
		Lat:         nullF64(lat),
		Lon:         nullF64(lon),
	}
	_ = json.Unmarshal([]byte(amenities), &lp.Amenities)
	lp.MinPrice, lp.MaxPrice = nullF64(minP), nullF64(maxP)
	lp.Occupancy, lp.Bedrooms, lp.Bathrooms = nullInt(occ), nullInt(beds), nullInt(baths)
	lp.ContactPhone = nullStr(phone)
	if raw.Valid {
		lp.RawFields = []byte(raw.String)
	}
	return lp, nil
}

func (r *Repo) Create(ctx context.Context, p domain.Property) (domain.LocalProperty, error) {
	now := r.ts()
	args := append(propertyArgs(p), domain.StatusPublish, now, now, now)
	res, err := r.db.ExecContext(ctx, insertPropertySQL, args...)
	if err != nil {
		return domain.LocalProperty{}, fmt.Errorf("insert property %s: %w", p.RemoteID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.LocalProperty{}, err
	}
	return domain.LocalProperty{
		ID:           id,
		PublishState: domain.StatusPublish,
		Property:     p,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}, nil
}

// Update overwrites the canonical fields and republishes the property.
func (r *Repo) Update(ctx context.Context, existing domain.LocalProperty, p domain.Property) (domain.LocalProperty, error) {
	now := r.ts()
	args := append(propertyArgs(p), domain.StatusPublish, now, now, existing.ID)
	res, err := r.db.ExecContext(ctx, updatePropertySQL, args...)
	if err != nil {
		return domain.LocalProperty{}, fmt.Errorf("update property %s: %w", p.RemoteID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.LocalProperty{}, domain.ErrNotFound
	}
	existing.Property = p
	existing.PublishState = domain.StatusPublish
	existing.UpdatedAt = now
	existing.LastSyncedAt = now
	return existing, nil
}

func (r *Repo) ReplaceImages(ctx context.Context, id int64, imgs []domain.PropertyImage) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteImagesSQL, id); err != nil {
			return err
		}
		for _, img := range imgs {
			if _, err := tx.ExecContext(ctx, insertImageSQL, id, img.Position, img.URL, valStr(img.Caption)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) SaveRates(ctx context.Context, id int64, raw []byte) error {
	return r.saveSnapshot(ctx, id, snapshotRates, raw)
}

func (r *Repo) SaveAvailability(ctx context.Context, id int64, raw []byte) error {
	return r.saveSnapshot(ctx, id, snapshotAvailability, raw)
}

func (r *Repo) saveSnapshot(ctx context.Context, id int64, kind string, raw []byte) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteSnapshotSQL, id, kind); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, insertSnapshotSQL, id, kind, string(raw), r.ts())
		return err
	})
}

// MarkOrphans drafts every published property whose remote id is not in
// keep and returns the local ids it drafted.
func (r *Repo) MarkOrphans(ctx context.Context, keep []string) ([]int64, error) {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}

	var drafted []int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, selectPublishedIDsSQL)
		if err != nil {
			return err
		}
		var orphans []int64
		for rows.Next() {
			var (
				id       int64
				remoteID string
			)
			if err := rows.Scan(&id, &remoteID); err != nil {
				rows.Close()
				return err
			}
			if _, ok := set[remoteID]; !ok {
				orphans = append(orphans, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		now := r.ts()
		for _, id := range orphans {
			if _, err := tx.ExecContext(ctx, draftPropertySQL, now, id); err != nil {
				return err
			}
		}
		drafted = orphans
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafted, nil
}

func (r *Repo) RecordRun(ctx context.Context, res domain.SyncResult) error {
	errs, _ := json.Marshal(nonNil(res.Errors))
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		res.RunID,
		string(res.State),
		res.Success,
		res.Count,
		res.Created,
		res.Updated,
		res.Unchanged,
		string(errs),
		res.Message,
		res.StartedAt.UTC(),
		res.FinishedAt.UTC(),
	)
	return err
}

func (r *Repo) GetProperty(ctx context.Context, id int64) (domain.PropertyView, error) {
	pv, err := scanView(r.db.QueryRowContext(ctx, getPropertySQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PropertyView{}, domain.ErrNotFound
		}
		return domain.PropertyView{}, err
	}

	rows, err := r.db.QueryContext(ctx, listImagesSQL, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	for rows.Next() {
		var (
			iv      domain.ImageView
			caption sql.NullString
		)
		if err := rows.Scan(&iv.URL, &caption); err != nil {
			rows.Close()
			return domain.PropertyView{}, err
		}
		iv.Caption = nullStr(caption)
		pv.Images = append(pv.Images, iv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.PropertyView{}, err
	}

	snaps, err := r.db.QueryContext(ctx, listSnapshotsSQL, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	defer snaps.Close()
	for snaps.Next() {
		var kind, payload string
		if err := snaps.Scan(&kind, &payload); err != nil {
			return domain.PropertyView{}, err
		}
		switch kind {
		case snapshotRates:
			pv.Rates = json.RawMessage(payload)
		case snapshotAvailability:
			pv.Availability = json.RawMessage(payload)
		}
	}
	return pv, snaps.Err()
}

// SearchProperties lists published properties by ascending id. The cursor is
// the opaque id of the last item of the previous page.
func (r *Repo) SearchProperties(ctx context.Context, q domain.PropertyQuery) (domain.PropertyPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var (
		where []string
		args  []any
	)
	if q.Q != nil && strings.TrimSpace(*q.Q) != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(*q.Q)) + "%"
		where = append(where, "(LOWER(p.title) LIKE ? OR LOWER(COALESCE(p.description, '')) LIKE ? OR LOWER(COALESCE(p.location, '')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.PropertyType != nil {
		where = append(where, "LOWER(p.property_type) = ?")
		args = append(args, strings.ToLower(*q.PropertyType))
	}
	if q.Location != nil {
		like := "%" + strings.ToLower(*q.Location) + "%"
		where = append(where, "(LOWER(COALESCE(p.location, '')) LIKE ? OR LOWER(COALESCE(p.region, '')) LIKE ? OR LOWER(COALESCE(p.zip, '')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.Amenity != nil {
		// amenities is a JSON array of labels
		where = append(where, "LOWER(p.amenities) LIKE ?")
		args = append(args, `%"`+strings.ToLower(*q.Amenity)+`"%`)
	}
	if q.MinPrice != nil {
		where = append(where, "p.min_price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		where = append(where, "p.min_price <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.MinOccupancy != nil {
		where = append(where, "p.occupancy >= ?")
		args = append(args, *q.MinOccupancy)
	}
	if q.Cursor != nil && *q.Cursor != "" {
		after, err := DecodeCursor(*q.Cursor)
		if err != nil {
			return domain.PropertyPage{}, err
		}
		where = append(where, "p.id > ?")
		args = append(args, after)
	}

	stmt := searchPrefixSQL
	for _, w := range where {
		stmt += "\n  AND " + w
	}
	stmt += "\nORDER BY p.id\nLIMIT ?"
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.PropertyPage{}, err
	}
	defer rows.Close()

	out := domain.PropertyPage{Items: []domain.PropertyView{}}
	for rows.Next() {
		pv, err := scanView(rows)
		if err != nil {
			return domain.PropertyPage{}, err
		}
		out.Items = append(out.Items, pv)
	}
	if err := rows.Err(); err != nil {
		return domain.PropertyPage{}, err
	}
	if len(out.Items) > limit {
		out.Items = out.Items[:limit]
		next := EncodeCursor(out.Items[limit-1].ID)
		out.NextCursor = &next
	}
	return out, nil
}

func EncodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

func DecodeCursor(c string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return 0, domain.ErrInvalidCursor
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || id < 0 {
		return 0, domain.ErrInvalidCursor
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanView(s scanner) (domain.PropertyView, error) {
	var (
		pv                                domain.PropertyView
		desc, ptype, loc, city, state, cc sql.NullString
		lat, lon, minP, maxP              sql.NullFloat64
		occ, beds, baths                  sql.NullInt64
		amenities                         string
	)
	if err := s.Scan(
		&pv.ID, &pv.RemoteID, &pv.Title, &desc, &ptype, &loc,
		&city, &state, &cc, &lat, &lon, &amenities,
		&minP, &maxP, &occ, &beds, &baths, &pv.UpdatedAt,
	); err != nil {
		return domain.PropertyView{}, err
	}
	pv.Description, pv.PropertyType, pv.Location = nullStr(desc), nullStr(ptype), nullStr(loc)
	pv.City, pv.State, pv.CountryCode = nullStr(city), nullStr(state), nullStr(cc)
	if lat.Valid && lon.Valid {
		pv.Coords = &domain.Coords{Lat: lat.Float64, Lon: lon.Float64}
	}
	pv.Amenities = []string{}
	_ = json.Unmarshal([]byte(amenities), &pv.Amenities)
	pv.MinPrice, pv.MaxPrice = nullF64(minP), nullF64(maxP)
	pv.Occupancy, pv.Bedrooms, pv.Bathrooms = nullInt(occ), nullInt(beds), nullInt(baths)
	return pv, nil
}

func (r *Repo) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
