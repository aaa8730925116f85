package transcripts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// SQLiteRepo remembers recognition results by the blake3 hash of the
	// source file, so dropping the same file again skips recognition.
	SQLiteRepo struct {
		db *sql.DB
	}
)

const schema = `
	create table if not exists speeches (
		id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		name text not null,
		blake3_hash text not null unique,
		is_transcribed integer default 0
	);

	create table if not exists segments (
		id integer not null,
		speech_id integer not null,
		text text not null,
		start_ms integer,
		end_ms integer,
		primary key (id, speech_id)
	);`

var thousand = decimal.NewFromInt(1000)

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db}
}

func (r SQLiteRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return nil
}

func (r SQLiteRepo) GetSpeechByHash(ctx context.Context, blake3Hash string) (Speech, error) {
	var (
		res           Speech
		isTranscribed uint8
	)

	err := r.db.
		QueryRowContext(
			ctx,
			"select id, name, blake3_hash, is_transcribed from speeches where blake3_hash = $1",
			blake3Hash,
		).
		Scan(&res.ID, &res.Name, &res.Blake3Hash, &isTranscribed)
	if errors.Is(err, sql.ErrNoRows) {
		return res, fmt.Errorf("get speech by hash: %w", ErrNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("get speech by hash: %w", err)
	}
	res.IsTranscribed = isTranscribed == 1

	return res, nil
}

func (r SQLiteRepo) CreateSpeech(ctx context.Context, name string, blake3Hash string) (Speech, error) {
	var isTranscribed uint8
	res := Speech{
		Name:       name,
		Blake3Hash: blake3Hash,
	}

	err := r.db.
		QueryRowContext(
			ctx,
			`insert into speeches (name, blake3_hash) values ($1, $2)
			on conflict (blake3_hash) do update set name = excluded.name
			returning id, is_transcribed`,
			name,
			blake3Hash,
		).
		Scan(&res.ID, &isTranscribed)
	if err != nil {
		return res, fmt.Errorf("persisting speech into sqlite: %w", err)
	}
	res.IsTranscribed = isTranscribed == 1

	return res, nil
}

// InsertSegments stores segments for speechID and marks it transcribed,
// replacing anything stored before.
func (r SQLiteRepo) InsertSegments(ctx context.Context, speechID int64, segments []Segment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inserting segments: begin trx: %w", err)
	}

	err = r.insertSegments(ctx, tx, speechID, segments)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback insert segments: %w", rbErr)
		}
		return err
	}
	_, err = tx.ExecContext(ctx, `
		update speeches
		set is_transcribed = 1
		where id = $1
	`, speechID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback update speech: %w", rbErr)
		}
		return fmt.Errorf("updating speech is_transcribed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("inserting segments: commiting: %w", err)
	}
	return nil
}

func (r SQLiteRepo) insertSegments(ctx context.Context, tx *sql.Tx, speechID int64, segments []Segment) error {
	if _, err := tx.ExecContext(ctx, "delete from segments where speech_id = $1", speechID); err != nil {
		return fmt.Errorf("inserting segments: clearing previous: %w", err)
	}
	if len(segments) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`insert into segments (
		id,
		speech_id,
		text,
		start_ms,
		end_ms) values `)
	args := make([]any, 0, 5*len(segments))
	for n, s := range segments {
		if n > 0 {
			b.WriteString(", ")
		}
		i := n * 5
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", i+1, i+2, i+3, i+4, i+5)
		args = append(args, n, speechID, s.Text, toMs(s.Start), toMs(s.End))
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("inserting segments: %w", err)
	}
	return nil
}

// ListSegments returns the stored segments of speechID in recognition order.
func (r SQLiteRepo) ListSegments(ctx context.Context, speechID int64) ([]Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		select text, start_ms, end_ms
		from segments
		where speech_id = $1
		order by id
	`, speechID)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	defer rows.Close()

	var res []Segment
	for rows.Next() {
		var (
			s          Segment
			start, end sql.NullInt64
		)
		if err := rows.Scan(&s.Text, &start, &end); err != nil {
			return nil, fmt.Errorf("listing segments: scanning: %w", err)
		}
		s.Start, s.End = fromMs(start), fromMs(end)
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	return res, nil
}

func toMs(sec *float64) sql.NullInt64 {
	if sec == nil || *sec < 0 || math.IsNaN(*sec) || math.IsInf(*sec, 0) {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: decimal.NewFromFloat(*sec).Mul(thousand).IntPart(), Valid: true}
}

func fromMs(ms sql.NullInt64) *float64 {
	if !ms.Valid {
		return nil
	}
	sec := decimal.New(ms.Int64, -3).InexactFloat64()
	return &sec
}
