package db

import (
	"fmt"
	"time"
)

// MonitorSample is one monitor decision as stored.
type MonitorSample struct {
	RunID     string
	Seq       int
	Time      time.Time
	VoltageMV uint16
	TempC     uint8
	Status    uint8
	DeltaMV   float64
	NoiseStd  float64
	Phase     string
	Anomaly   bool
	Alert     bool
	Reasons   string
}

// InsertSample stores one monitor sample.
func (db *DB) InsertSample(s MonitorSample) error {
	_, err := db.Exec(
		`INSERT INTO monitor_samples
			(run_id, seq, ts_unix_nano, voltage_mv, temp_c, status, delta_mv, noise_std, phase, anomaly, alert, reasons)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Seq, s.Time.UnixNano(), s.VoltageMV, s.TempC, s.Status,
		s.DeltaMV, s.NoiseStd, s.Phase, s.Anomaly, s.Alert, s.Reasons,
	)
	if err != nil {
		return fmt.Errorf("failed to insert monitor sample: %w", err)
	}
	return nil
}

// Samples returns all samples of a run in sequence order.
func (db *DB) Samples(runID string) ([]MonitorSample, error) {
	rows, err := db.Query(
		`SELECT seq, ts_unix_nano, voltage_mv, temp_c, status, delta_mv, noise_std, phase, anomaly, alert, reasons
		 FROM monitor_samples WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonitorSample
	for rows.Next() {
		s := MonitorSample{RunID: runID}
		var ts int64
		if err := rows.Scan(&s.Seq, &ts, &s.VoltageMV, &s.TempC, &s.Status,
			&s.DeltaMV, &s.NoiseStd, &s.Phase, &s.Anomaly, &s.Alert, &s.Reasons); err != nil {
			return nil, err
		}
		s.Time = time.Unix(0, ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AlertCount returns the number of alerting samples in a run.
func (db *DB) AlertCount(runID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM monitor_samples WHERE run_id = ? AND alert = 1`, runID).Scan(&n)
	return n, err
}
