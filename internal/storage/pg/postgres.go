// Package pg stores resources and reservations in PostgreSQL. Queries are
// built with goqu and executed on a pgx pool. The schema enforces the
// no-overlap invariant with an exclusion constraint.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"booking/internal/models"
	"booking/internal/storage"
	"booking/migrations"
)

const (
	dialectPostgres   = "postgres"
	tableResources    = "resources"
	tableReservations = "reservations"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgExclusionViolation  = "23P01"
)

// PostgresDB implements storage.Storage on a pgx pool
type PostgresDB struct {
	pool    *pgxpool.Pool
	builder goqu.DialectWrapper
}

// NewPostgresDB connects to the database at dsn
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	const defaultMaxConnections = int32(8)
	const defaultMinConnections = int32(2)
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5
	const defaultHealthCheckPeriod = time.Minute
	const defaultConnectTimeout = time.Second * 5

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConnections
	cfg.MinConns = defaultMinConnections
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	cfg.HealthCheckPeriod = defaultHealthCheckPeriod
	cfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool, builder: goqu.Dialect(dialectPostgres)}, nil
}

// Initialize applies pending migrations
func (db *PostgresDB) Initialize(ctx context.Context) error {
	return db.Migrate(ctx)
}

// Migrate runs the embedded goose migrations through a database/sql view of the pool
func (db *PostgresDB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()

	return migrations.Up(ctx, sqlDB, dialectPostgres)
}

// Close releases the pool
func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func resourceRecord(r models.Resource) goqu.Record {
	return goqu.Record{
		"title":         r.Title,
		"author":        r.Author,
		"keywords":      r.Keywords,
		"resource_type": string(r.ResourceType),
	}
}

// CreateResource inserts a resource and returns it with its id
func (db *PostgresDB) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	query, args, err := db.builder.Insert(tableResources).
		Rows(resourceRecord(resource)).
		Returning("id").
		Prepared(true).ToSQL()
	if err != nil {
		return models.Resource{}, fmt.Errorf("failed to build insert query: %w", err)
	}
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&resource.ID); err != nil {
		return models.Resource{}, fmt.Errorf("failed to create resource: %w", err)
	}
	return resource, nil
}

// UpdateResource overwrites an existing resource
func (db *PostgresDB) UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	query, args, err := db.builder.Update(tableResources).
		Set(resourceRecord(resource)).
		Where(goqu.C("id").Eq(resource.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return models.Resource{}, fmt.Errorf("failed to build update query: %w", err)
	}
	if err := db.execOne(ctx, query, args); err != nil {
		return models.Resource{}, fmt.Errorf("failed to update resource: %w", err)
	}
	return resource, nil
}

// GetResource returns a resource by id
func (db *PostgresDB) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	resources, err := db.queryResources(ctx, db.resourceSelect().Where(goqu.C("id").Eq(id)))
	if err != nil {
		return models.Resource{}, err
	}
	if len(resources) == 0 {
		return models.Resource{}, storage.ErrNotFound
	}
	return resources[0], nil
}

// DeleteResource removes a resource and, by cascade, its reservations
func (db *PostgresDB) DeleteResource(ctx context.Context, id int64) error {
	query, args, err := db.builder.Delete(tableResources).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if err := db.execOne(ctx, query, args); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// ListResources returns a filtered, sorted page of resources
func (db *PostgresDB) ListResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, int64, error) {
	page = page.Normalize()
	where := resourceConditions(filter)

	total, err := db.count(ctx, db.builder.From(tableResources).Where(where...))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count resources: %w", err)
	}

	sortColumn := "id"
	switch page.SortField {
	case models.SortTitle:
		sortColumn = "title"
	case models.SortResourceType:
		sortColumn = "resource_type"
	}

	ds := db.resourceSelect().
		Where(where...).
		Order(orderBy(sortColumn, "id", page.SortDesc)...).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset()))

	resources, err := db.queryResources(ctx, ds)
	if err != nil {
		return nil, 0, err
	}
	return resources, total, nil
}

func resourceConditions(filter models.ResourceFilter) []exp.Expression {
	var where []exp.Expression
	if filter.Title != "" {
		where = append(where, goqu.C("title").ILike(likePattern(filter.Title)))
	}
	if filter.Author != "" {
		where = append(where, goqu.C("author").ILike(likePattern(filter.Author)))
	}
	if filter.Keywords != "" {
		where = append(where, goqu.C("keywords").ILike(likePattern(filter.Keywords)))
	}
	if filter.Type != "" {
		where = append(where, goqu.C("resource_type").Eq(string(filter.Type)))
	}
	return where
}

func (db *PostgresDB) resourceSelect() *goqu.SelectDataset {
	return db.builder.From(tableResources).Select("id", "title", "author", "keywords", "resource_type")
}

func (db *PostgresDB) queryResources(ctx context.Context, ds *goqu.SelectDataset) ([]models.Resource, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
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

func reservationRecord(r models.Reservation) goqu.Record {
	return goqu.Record{
		"reservation_date": r.ReservationDate.UTC(),
		"start_time":       r.StartTime.UTC(),
		"end_time":         r.EndTime.UTC(),
		"reservation_code": r.ReservationID,
		"user_id":          r.User.ID,
		"user_login":       r.User.Login,
		"resource_id":      r.Resource.ID,
	}
}

// CreateReservation inserts a reservation and returns the stored row
func (db *PostgresDB) CreateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	query, args, err := db.builder.Insert(tableReservations).
		Rows(reservationRecord(reservation)).
		Returning("id").
		Prepared(true).ToSQL()
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to build insert query: %w", err)
	}
	var id int64
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to create reservation: %w", mapError(err))
	}
	return db.GetReservation(ctx, id)
}

// UpdateReservation overwrites an existing reservation
func (db *PostgresDB) UpdateReservation(ctx context.Context, reservation models.Reservation) (models.Reservation, error) {
	query, args, err := db.builder.Update(tableReservations).
		Set(reservationRecord(reservation)).
		Where(goqu.C("id").Eq(reservation.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to build update query: %w", err)
	}
	if err := db.execOne(ctx, query, args); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to update reservation: %w", err)
	}
	return db.GetReservation(ctx, reservation.ID)
}

// GetReservation returns a reservation by id
func (db *PostgresDB) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	reservations, err := db.queryReservations(ctx, db.reservationSelect().Where(goqu.I("r.id").Eq(id)))
	if err != nil {
		return models.Reservation{}, err
	}
	if len(reservations) == 0 {
		return models.Reservation{}, storage.ErrNotFound
	}
	return reservations[0], nil
}

// DeleteReservation removes a reservation
func (db *PostgresDB) DeleteReservation(ctx context.Context, id int64) error {
	query, args, err := db.builder.Delete(tableReservations).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if err := db.execOne(ctx, query, args); err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	return nil
}

// ListReservations returns a sorted page of all reservations
func (db *PostgresDB) ListReservations(ctx context.Context, page models.PageRequest) ([]models.Reservation, int64, error) {
	page = page.Normalize()

	total, err := db.count(ctx, db.builder.From(tableReservations))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	sortColumn := "r.id"
	switch page.SortField {
	case models.SortStartTime:
		sortColumn = "r.start_time"
	case models.SortReservationDate:
		sortColumn = "r.reservation_date"
	}

	reservations, err := db.queryReservations(ctx, db.reservationSelect().
		Order(orderBy(sortColumn, "r.id", page.SortDesc)...).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset())))
	if err != nil {
		return nil, 0, err
	}
	return reservations, total, nil
}

// ListReservationsByResource returns reservations of a resource ordered by start time
func (db *PostgresDB) ListReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error) {
	return db.queryReservations(ctx, db.reservationSelect().
		Where(goqu.I("r.resource_id").Eq(resourceID)).
		Order(goqu.I("r.start_time").Asc(), goqu.I("r.id").Asc()))
}

// ListActiveReservationsByUser returns the user's reservations ending after now
func (db *PostgresDB) ListActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) ([]models.Reservation, error) {
	return db.queryReservations(ctx, db.reservationSelect().
		Where(goqu.I("r.user_id").Eq(userID), goqu.I("r.end_time").Gt(now.UTC())).
		Order(goqu.I("r.start_time").Asc(), goqu.I("r.id").Asc()))
}

// CountActiveReservationsByUser counts the user's reservations ending after now
func (db *PostgresDB) CountActiveReservationsByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	n, err := db.count(ctx, db.builder.From(tableReservations).
		Where(goqu.C("user_id").Eq(userID), goqu.C("end_time").Gt(now.UTC())))
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return n, nil
}

// FindOverlappingReservations returns reservations of the resource intersecting [start, end)
func (db *PostgresDB) FindOverlappingReservations(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Reservation, error) {
	return db.queryReservations(ctx, db.reservationSelect().
		Where(
			goqu.I("r.resource_id").Eq(resourceID),
			goqu.I("r.start_time").Lt(end.UTC()),
			goqu.I("r.end_time").Gt(start.UTC()),
		).
		Order(goqu.I("r.start_time").Asc(), goqu.I("r.id").Asc()))
}

func (db *PostgresDB) reservationSelect() *goqu.SelectDataset {
	return db.builder.From(goqu.T(tableReservations).As("r")).
		LeftJoin(goqu.T(tableResources).As("s"), goqu.On(goqu.I("r.resource_id").Eq(goqu.I("s.id")))).
		Select(
			"r.id", "r.reservation_date", "r.start_time", "r.end_time", "r.reservation_code",
			"r.user_id", "r.user_login", "r.resource_id",
			goqu.COALESCE(goqu.I("s.title"), "").As("resource_title"),
		)
}

func (db *PostgresDB) queryReservations(ctx context.Context, ds *goqu.SelectDataset) ([]models.Reservation, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
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
		r.ReservationDate = r.ReservationDate.UTC()
		r.StartTime = r.StartTime.UTC()
		r.EndTime = r.EndTime.UTC()
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (db *PostgresDB) count(ctx context.Context, ds *goqu.SelectDataset) (int64, error) {
	query, args, err := ds.Select(goqu.COUNT("*")).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// execOne runs a statement that must touch exactly one row
func (db *PostgresDB) execOne(ctx context.Context, query string, args []any) error {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// mapError translates constraint violations to storage sentinel errors
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return errors.Join(storage.ErrDuplicateReservationID, err)
	case pgExclusionViolation:
		return errors.Join(storage.ErrOverlap, err)
	case pgForeignKeyViolation:
		return errors.Join(storage.ErrNotFound, err)
	}
	return err
}

func orderBy(column, tiebreak string, desc bool) []exp.OrderedExpression {
	order := func(c string) exp.OrderedExpression {
		if desc {
			return goqu.I(c).Desc()
		}
		return goqu.I(c).Asc()
	}
	if column == tiebreak {
		return []exp.OrderedExpression{order(column)}
	}
	return []exp.OrderedExpression{order(column), order(tiebreak)}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
