package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

// FrameRecord is one stored egress frame.
type FrameRecord struct {
	RunID string
	Time  time.Time
	Frame protocol.EgressFrame
}

// Recorder is an egress.Sink that appends every frame to the frames table.
type Recorder struct {
	db    *DB
	runID string
	clock timeutil.Clock
}

// NewRecorder returns a sink recording frames under runID. A nil clock uses
// the wall clock.
func (db *DB) NewRecorder(runID string, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{db: db, runID: runID, clock: clock}
}

func (r *Recorder) Emit(f protocol.EgressFrame) error {
	if err := r.db.InsertFrame(r.runID, r.clock.Now(), f); err != nil {
		return &egress.SinkError{Sink: "sqlite://" + r.db.Path(), Err: err}
	}
	return nil
}

// InsertFrame stores one egress frame.
func (db *DB) InsertFrame(runID string, at time.Time, f protocol.EgressFrame) error {
	raw, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO frames (run_id, ts_unix_nano, voltage_mv, temp_c, status, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, at.UnixNano(), f.Voltage(), f.Temp(), f.Status(), raw,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

// RecentFrames returns up to limit frames of a run, oldest first.
func (db *DB) RecentFrames(runID string, limit int) ([]FrameRecord, error) {
	rows, err := db.Query(
		`SELECT ts_unix_nano, payload FROM (
			SELECT frame_id, ts_unix_nano, payload FROM frames
			WHERE run_id = ? ORDER BY frame_id DESC LIMIT ?
		) ORDER BY frame_id ASC`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var (
			ts  int64
			raw []byte
		)
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, err
		}
		f, err := protocol.ParseFrame(raw)
		if err != nil {
			return nil, fmt.Errorf("stored frame is corrupt: %w", err)
		}
		out = append(out, FrameRecord{RunID: runID, Time: time.Unix(0, ts), Frame: f})
	}
	return out, rows.Err()
}

// StatusCounts returns the number of frames per status tag for a run.
func (db *DB) StatusCounts(runID string) (map[uint8]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM frames WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uint8]int)
	for rows.Next() {
		var status uint8
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
