package sqlrepo

// Statements are shared by the sqlite and mysql stores; keep them to the
// common dialect (`?` placeholders, no upsert clauses).

const propertyColumns = `
  remote_id, title, description, property_type, remote_status,
  street, street2, city, state, zip, country, country_code, region, location,
  lat, lon, amenities, min_price, max_price, occupancy, bedrooms, bathrooms,
  contact_phone, raw, checksum`

const insertPropertySQL = `
INSERT INTO properties
  (` + propertyColumns + `,
   publish_state, created_at, updated_at, last_synced_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updatePropertySQL = `
UPDATE properties SET
  remote_id     = ?,
  title         = ?,
  description   = ?,
  property_type = ?,
  remote_status = ?,
  street        = ?,
  street2       = ?,
  city          = ?,
  state         = ?,
  zip           = ?,
  country       = ?,
  country_code  = ?,
  region        = ?,
  location      = ?,
  lat           = ?,
  lon           = ?,
  amenities     = ?,
  min_price     = ?,
  max_price     = ?,
  occupancy     = ?,
  bedrooms      = ?,
  bathrooms     = ?,
  contact_phone = ?,
  raw           = ?,
  checksum      = ?,
  publish_state = ?,
  updated_at    = ?,
  last_synced_at = ?
WHERE id = ?
`

const selectLocalSQL = `
SELECT id, publish_state, ` + propertyColumns + `,
  created_at, updated_at, last_synced_at
FROM properties
WHERE remote_id = ?
`

const deleteImagesSQL = `DELETE FROM property_images WHERE property_id = ?`

const insertImageSQL = `
INSERT INTO property_images (property_id, position, url, caption)
VALUES (?, ?, ?, ?)
`

const deleteSnapshotSQL = `DELETE FROM property_snapshots WHERE property_id = ? AND kind = ?`

const insertSnapshotSQL = `
INSERT INTO property_snapshots (property_id, kind, payload, fetched_at)
VALUES (?, ?, ?, ?)
`

const selectPublishedIDsSQL = `
SELECT id, remote_id FROM properties WHERE publish_state <> 'draft'
`

const draftPropertySQL = `
UPDATE properties SET publish_state = 'draft', updated_at = ? WHERE id = ?
`

const insertRunSQL = `
INSERT INTO sync_runs
  (run_id, state, success, record_count, created, updated, unchanged, errors, message, started_at, finished_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const viewColumns = `
  p.id, p.remote_id, p.title, p.description, p.property_type, p.location,
  p.city, p.state, p.country_code, p.lat, p.lon, p.amenities,
  p.min_price, p.max_price, p.occupancy, p.bedrooms, p.bathrooms, p.updated_at`

// Drafted properties are hidden from every read.
const getPropertySQL = `
SELECT` + viewColumns + `
FROM properties p
WHERE p.id = ? AND p.publish_state = 'publish'
`

const listImagesSQL = `
SELECT url, caption FROM property_images
WHERE property_id = ?
ORDER BY position, id
`

const listSnapshotsSQL = `
SELECT kind, payload FROM property_snapshots WHERE property_id = ?
`

const searchPrefixSQL = `
SELECT` + viewColumns + `
FROM properties p
WHERE p.publish_state = 'publish'`
