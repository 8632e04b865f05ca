package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"booking/internal/models"
	"booking/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Rows are versioned with ReplacingMergeTree: an update or delete inserts a
// new row with a higher version, reads use FINAL and skip deleted rows.
const (
	liveResources    = `(SELECT * FROM resources FINAL WHERE deleted = 0)`
	liveReservations = `(SELECT * FROM reservations FINAL WHERE deleted = 0)`

	reservationColumns = `r.id, r.reservation_date, r.start_time, r.end_time, r.reservation_code,
		r.user_id, r.user_login, r.resource_id, s.title`
	reservationFrom = ` FROM ` + liveReservations + ` AS r
		LEFT JOIN (SELECT id, title FROM resources FINAL WHERE deleted = 0) AS s ON r.resource_id = s.id`
)

type ClickHouseDB struct {
	conn clickhouse.Conn

	// ClickHouse has no sequences; ids are allocated in-process from max(id)
	resourceSeq    atomic.Int64
	reservationSeq atomic.Int64

	versionMu   sync.Mutex
	lastVersion uint64
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize loads the id sequences. Tables are managed via migrations.
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	var maxResource, maxReservation int64
	if err := db.conn.QueryRow(ctx, `SELECT max(id) FROM resources`).Scan(&maxResource); err != nil {
		return fmt.Errorf("failed to load resource id sequence: %w", err)
	}
	if err := db.conn.QueryRow(ctx, `SELECT max(id) FROM reservations`).Scan(&maxReservation); err != nil {
		return fmt.Errorf("failed to load reservation id sequence: %w", err)
	}
	db.resourceSeq.Store(maxResource)
	db.reservationSeq.Store(maxReservation)
	return nil
}

// nextVersion returns a strictly increasing row version
func (db *ClickHouseDB) nextVersion() uint64 {
	db.versionMu.Lock()
	defer db.versionMu.Unlock()

	v := uint64(time.Now().UnixNano())
	if v <= db.lastVersion {
		v = db.lastVersion + 1
	}
	db.lastVersion = v
	return v
}

func (db *ClickHouseDB) insertResource(ctx context.Context, r models.Resource, deleted bool) error {
	return db.conn.Exec(ctx, `INSERT INTO resources (id, title, author, keywords, resource_type, version, deleted) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Author, r.Keywords, string(r.ResourceType), db.nextVersion(), boolToUInt8(deleted))
}

// CreateResource creates a new resource and assigns its id
func (db *ClickHouseDB) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	resource.ID = db.resourceSeq.Add(1)
	if err := db.insertResource(ctx, resource, false); err != nil {
		return models.Resource{}, fmt.Errorf("failed to create resource: %w", err)
	}
	return resource, nil
}

// UpdateResource writes a new version of an existing resource
func (db *ClickHouseDB) UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	if _, err := db.GetResource(ctx, resource.ID); err != nil {
		return models.Resource{}, err
	}
	if err := db.insertResource(ctx, resource, false); err != nil {
		return models.Resource{}, fmt.Errorf("failed to update resource: %w", err)
	}
	return resource, nil
}

// GetResource returns a resource by id
func (db *ClickHouseDB) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, title, author, keywords, resource_type FROM `+liveResources+` AS r WHERE id = ?`, id)
	if err != nil {
		return models.Resource{}, fmt.Errorf("failed to get resource: %w", err)
	}
	resources, err := scanResources(rows)
	if err != nil {
		return models.Resource{}, err
	}
	if len(resources) == 0 {
		return models.Resource{}, storage.ErrNotFound
	}
	return resources[0], nil
}

// DeleteResource writes a tombstone version of the resource
func (db *ClickHouseDB) DeleteResource(ctx context.Context, id int64) error {
	resource, err := db.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := db.insertResource(ctx, resource, true); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// ListResources returns a filtered, sorted page of resources
func (db *ClickHouseDB) ListResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, int64, error) {
	page = page.Normalize()

	var conds []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"title", filter.Title},
		{"author", filter.Author},
		{"keywords", filter.Keywords},
	} {
		if c.value != "" {
			conds = append(conds, fmt.Sprintf("positionCaseInsensitiveUTF8(%s, ?) > 0", c.column))
			args = append(args, c.value)
		}
	}
	if filter.Type != "" {
		conds = append(conds, "resource_type = ?")
		args = append(args, string(filter.Type))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total uint64
	if err := db.conn.QueryRow(ctx, `SELECT count() FROM `+liveResources+` AS r`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count resources: %w", err)
	}

	query := `SELECT id, title, author, keywords, resource_type FROM ` + liveResources + ` AS r` + where +
		` ORDER BY ` + resourceOrder(page) + ` LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list resources: %w", err)
	}
	resources, err := scanResources(rows)
	if err != nil {
		return nil, 0, err
	}
	return resources, int64(total), nil
}

func (db *ClickHouseDB) insertReservation(ctx context.Context, r models.Reservation, deleted bool) error {
	return db.conn.Exec(ctx, `INSERT INTO reservations (id, reservation_date, start_time, end_time, reservation_code, user_id, user_login, resource_id, version, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReservationDate.UTC(), r.StartTime.UTC(), r.EndTime.UTC(), r.ReservationID,
		r.User.ID, r.User.Login, r.Resource.ID, db.nextVersion(), boolToUInt8(deleted))
}

func (db *ClickHouseDB) reservationIDTaken(ctx context.Context, code string, exceptID int64) (bool, error) {
	var n uint64
	err := db.conn.QueryRow(ctx, `SELECT count() FROM `+liveReservations+` AS r WHERE reservation_code = ? AND id != ?`, code, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check reservation id: %w", err)
	}
	return n > 0, nil
}

// CreateReservation creates a new reservation and assigns its id
func (db *ClickHouseDB) CreateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	taken, err := db.reservationIDTaken(ctx, reservation.ReservationID, 0)
	if err != nil {
		return models.Reservation{}, err
	}
	if taken {
		return models.Reservation{}, storage.ErrDuplicateReservationID
	}

	reservation.ID = db.reservationSeq.Add(1)
	if err := db.insertReservation(ctx, reservation, false); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to create reservation: %w", err)
	}
	return db.GetReservation(ctx, reservation.ID)
}

// UpdateReservation writes a new version of an existing reservation
func (db *ClickHouseDB) UpdateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	if _, err := db.GetReservation(ctx, reservation.ID); err != nil {
		return models.Reservation{}, err
	}
	taken, err := db.reservationIDTaken(ctx, reservation.ReservationID, reservation.ID)
	if err != nil {
		return models.Reservation{}, err
	}
	if taken {
		return models.Reservation{}, storage.ErrDuplicateReservationID
	}

	if err := db.insertReservation(ctx, reservation, false); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to update reservation: %w", err)
	}
	return db.GetReservation(ctx, reservation.ID)
}

// GetReservation returns a reservation by id
func (db *ClickHouseDB) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	reservations, err := db.queryReservations(ctx, ` WHERE r.id = ?`, id)
	if err != nil {
		return models.Reservation{}, err
	}
	if len(reservations) == 0 {
		return models.Reservation{}, storage.ErrNotFound
	}
	return reservations[0], nil
}

// DeleteReservation writes a tombstone version of the reservation
func (db *ClickHouseDB) DeleteReservation(ctx context.Context, id int64) error {
	reservation, err := db.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if err := db.insertReservation(ctx, reservation, true); err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	return nil
}

// ListReservations returns a sorted page of all reservations
func (db *ClickHouseDB) ListReservations(ctx context.Context, page models.PageRequest) ([]models.Reservation, int64, error) {
	page = page.Normalize()

	var total uint64
	if err := db.conn.QueryRow(ctx, `SELECT count() FROM `+liveReservations+` AS r`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	reservations, err := db.queryReservations(ctx, ` ORDER BY `+reservationOrder(page)+` LIMIT ? OFFSET ?`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return reservations, int64(total), nil
}

// ListReservationsByResource returns reservations of a resource ordered by start time
func (db *ClickHouseDB) ListReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error) {
	return db.queryReservations(ctx, ` WHERE r.resource_id = ? ORDER BY r.start_time, r.id`, resourceID)
}

// ListActiveReservationsByUser returns the user's reservations ending after now
func (db *ClickHouseDB) ListActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) ([]models.Reservation, error) {
	return db.queryReservations(ctx, ` WHERE r.user_id = ? AND r.end_time > ? ORDER BY r.start_time, r.id`, userID, now.UTC())
}

// CountActiveReservationsByUser counts the user's reservations ending after now
func (db *ClickHouseDB) CountActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	var n uint64
	err := db.conn.QueryRow(ctx, `SELECT count() FROM `+liveReservations+` AS r WHERE user_id = ? AND end_time > ?`, userID, now.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return int64(n), nil
}

// FindOverlappingReservations returns reservations of the resource intersecting [start, end)
func (db *ClickHouseDB) FindOverlappingReservations(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Reservation, error) {
	return db.queryReservations(ctx, ` WHERE r.resource_id = ? AND r.start_time < ? AND r.end_time > ? ORDER BY r.start_time, r.id`,
		resourceID, end.UTC(), start.UTC())
}

func (db *ClickHouseDB) queryReservations(ctx context.Context, tail string, args ...any) ([]models.Reservation, error) {
	rows, err := db.conn.Query(ctx, `SELECT `+reservationColumns+reservationFrom+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var r models.Reservation
		if err := rows.Scan(&r.ID, &r.ReservationDate, &r.StartTime, &r.EndTime, &r.ReservationID,
			&r.User.ID, &r.User.Login, &r.Resource.ID, &r.Resource.Title); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func scanResources(rows driver.Rows) ([]models.Resource, error) {
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var r models.Resource
		var resourceType string
		if err := rows.Scan(&r.ID, &r.Title, &r.Author, &r.Keywords, &resourceType); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.ResourceType = models.ResourceType(resourceType)
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func resourceOrder(page models.PageRequest) string {
	column := "id"
	switch page.SortField {
	case models.SortTitle:
		column = "title"
	case models.SortResourceType:
		column = "resource_type"
	}
	return orderClause(column, "id", page.SortDesc)
}

func reservationOrder(page models.PageRequest) string {
	column := "r.id"
	switch page.SortField {
	case models.SortStartTime:
		column = "r.start_time"
	case models.SortReservationDate:
		column = "r.reservation_date"
	}
	return orderClause(column, "r.id", page.SortDesc)
}

func orderClause(column, tiebreak string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if column == tiebreak {
		return column + " " + dir
	}
	return column + " " + dir + ", " + tiebreak + " " + dir
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
