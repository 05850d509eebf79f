// Package kpi persists tile summaries in Postgres and serves them back
// as time series.
package kpi

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
	"github.com/nci/gomemcache/memcache"
)

const Schema = `create table if not exists kpi_summary (
	id         bigserial primary key,
	script     text not null,
	collection text not null,
	ts         timestamptz not null,
	footprint  text not null,
	band       integer not null,
	count      integer not null,
	masked     integer not null,
	mean       double precision not null,
	min        double precision not null,
	max        double precision not null,
	std        double precision not null
);
create index if not exists kpi_summary_series on kpi_summary (script, band, ts);`

// Store writes summaries to the kpi_summary table. Series responses are
// cached in memcache when a client is configured.
type Store struct {
	db         *sql.DB
	mc         *memcache.Client
	Expiration int32
}

// Open connects to a local Postgres over its unix socket.
func Open(dbUser, dbName string, pool, limit int, mcURI string) (*Store, error) {
	dbinfo := fmt.Sprintf("user=%s host=/var/run/postgresql dbname=%s sslmode=disable", dbUser, dbName)
	db, err := sql.Open("postgres", dbinfo)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(pool)
	db.SetMaxOpenConns(limit)

	var mc *memcache.Client
	if mcURI != "" {
		// lazy connection; errors returned in .Get
		mc = memcache.New(mcURI)
	}
	return NewStore(db, mc), nil
}

func NewStore(db *sql.DB, mc *memcache.Client) *Store {
	return &Store{db: db, mc: mc, Expiration: 300}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Put inserts the summaries in one transaction.
func (s *Store) Put(ctx context.Context, kpis []*processor.KPISummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `insert into kpi_summary
		(script, collection, ts, footprint, band, count, masked, mean, min, max, std)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, k := range kpis {
		args, err := putArgs(k)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func putArgs(k *processor.KPISummary) ([]interface{}, error) {
	if len(k.Script) == 0 {
		return nil, fmt.Errorf("kpi summary without script")
	}
	footprint, err := utils.FootprintWKT(k.Footprint)
	if err != nil {
		return nil, err
	}
	return []interface{}{k.Script, k.Collection, k.TimeStamp.UTC(), footprint,
		k.Band, k.Count, k.Masked, k.Mean, k.Min, k.Max, k.Std}, nil
}

// SeriesQuery selects one statistic of one script band over time.
// Empty Collection, Since and Until leave that filter out.
type SeriesQuery struct {
	Script     string
	Collection string
	Band       int
	Kind       processor.KPIKind
	Since      string
	Until      string
}

// ParseSeriesQuery reads a query from request parameters.
func ParseSeriesQuery(get func(string) string) (SeriesQuery, error) {
	q := SeriesQuery{
		Script:     get("script"),
		Collection: get("collection"),
		Kind:       processor.ParseKPIKind(get("kind")),
		Since:      get("time"),
		Until:      get("until"),
	}
	if len(q.Script) == 0 {
		return q, fmt.Errorf("script parameter is required")
	}
	if b := get("band"); len(b) > 0 {
		band, err := strconv.Atoi(b)
		if err != nil || band < 0 {
			return q, fmt.Errorf("invalid band: %q", b)
		}
		q.Band = band
	}
	for _, t := range []string{q.Since, q.Until} {
		if len(t) == 0 {
			continue
		}
		if _, err := time.Parse(time.RFC3339, t); err != nil {
			return q, fmt.Errorf("invalid time: %q", t)
		}
	}
	return q, nil
}

// kindColumn maps a statistic onto its column. The column name is
// spliced into SQL so only known kinds are accepted.
func kindColumn(kind processor.KPIKind) string {
	switch kind {
	case processor.KPIMax:
		return "max"
	case processor.KPIMin:
		return "min"
	case processor.KPIStd:
		return "std"
	default:
		return "mean"
	}
}

func (q SeriesQuery) sql() string {
	return fmt.Sprintf(`select coalesce(json_agg(json_build_object(
			'timestamp', ts, 'value', %s, 'count', count) order by ts), '[]')::text
		from kpi_summary
		where script = $1
		and (nullif($2,'') is null or collection = $2)
		and band = $3
		and ts >= coalesce(nullif($4,'')::timestamptz, '-infinity')
		and ts <= coalesce(nullif($5,'')::timestamptz, 'infinity')`, kindColumn(q.Kind))
}

func (q SeriesQuery) args() []interface{} {
	return []interface{}{q.Script, q.Collection, q.Band, q.Since, q.Until}
}

// CacheKey is the memcache key of a request URI.
func CacheKey(uri string) string {
	buff := md5.Sum([]byte(uri))
	return hex.EncodeToString(buff[:])
}

// Series returns the JSON array of {timestamp, value, count} points
// matching q. key names the cache entry; an empty key bypasses the cache.
func (s *Store) Series(ctx context.Context, key string, q SeriesQuery) ([]byte, error) {
	if s.mc != nil && len(key) > 0 {
		if cached, err := s.mc.Get(key); err == nil {
			return cached.Value, nil
		}
	}

	var payload string
	if err := s.db.QueryRowContext(ctx, q.sql(), q.args()...).Scan(&payload); err != nil {
		return nil, err
	}

	if s.mc != nil && len(key) > 0 {
		// don't care about errors; memcache may not necessarily retain this anyway
		s.mc.Set(&memcache.Item{Key: key, Value: []byte(payload), Expiration: s.Expiration})
	}
	return []byte(payload), nil
}
