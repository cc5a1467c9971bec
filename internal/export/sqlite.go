// Package export writes registry snapshots to formats other tools consume.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wifibear/capvault/internal/registry"
)

const schema = `
CREATE TABLE access_points (
	bssid      TEXT PRIMARY KEY,
	essid      TEXT NOT NULL,
	channel    TEXT,
	encryption TEXT,
	first_seen TEXT,
	last_seen  TEXT,
	packets    INTEGER NOT NULL DEFAULT 0,
	beacons    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE essid_history (
	bssid    TEXT NOT NULL,
	position INTEGER NOT NULL,
	essid    TEXT NOT NULL,
	PRIMARY KEY (bssid, position),
	FOREIGN KEY (bssid) REFERENCES access_points(bssid)
);

CREATE TABLE stations (
	mac              TEXT PRIMARY KEY,
	associated_bssid TEXT,
	probed_essids    TEXT,
	first_seen       TEXT,
	last_seen        TEXT,
	packets          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE pcaps (
	filename   TEXT PRIMARY KEY,
	bssid      TEXT NOT NULL,
	created    TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	path       TEXT,
	digest     TEXT,
	analyzed   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE handshakes (
	filename     TEXT NOT NULL,
	bssid        TEXT NOT NULL,
	type         TEXT NOT NULL,
	ssid         TEXT,
	client_mac   TEXT,
	pmkid        TEXT,
	complete     INTEGER NOT NULL DEFAULT 0,
	eapol_frames INTEGER NOT NULL DEFAULT 0,
	messages     TEXT,
	packet_index INTEGER,
	FOREIGN KEY (filename) REFERENCES pcaps(filename)
);

CREATE INDEX idx_handshakes_bssid ON handshakes(bssid);
CREATE INDEX idx_stations_bssid ON stations(associated_bssid);
`

// WriteSQLite writes snap to a fresh SQLite database at path, replacing any
// existing file.
func WriteSQLite(ctx context.Context, path string, snap registry.Registry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove old export: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := insertSnapshot(ctx, tx, snap); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap registry.Registry) error {
	for _, bssid := range sortedKeys(snap.BSSIDs) {
		ap := snap.BSSIDs[bssid]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO access_points (bssid, essid, channel, encryption, first_seen, last_seen, packets, beacons)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bssid, ap.ESSID, ap.Channel, ap.Encryption,
			timestamp(ap.FirstSeen), timestamp(ap.LastSeen),
			int64(ap.Packets), int64(ap.Beacons),
		); err != nil {
			return fmt.Errorf("insert access point %s: %w", bssid, err)
		}
		for i, essid := range ap.ESSIDHistory {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO essid_history (bssid, position, essid) VALUES (?, ?, ?)`,
				bssid, i, essid,
			); err != nil {
				return fmt.Errorf("insert essid history %s: %w", bssid, err)
			}
		}
	}

	for _, mac := range sortedKeys(snap.Stations) {
		st := snap.Stations[mac]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stations (mac, associated_bssid, probed_essids, first_seen, last_seen, packets)
			VALUES (?, ?, ?, ?, ?, ?)`,
			mac, nullable(st.AssociatedBSSID), st.ProbedESSIDs,
			timestamp(st.FirstSeen), timestamp(st.LastSeen), int64(st.Packets),
		); err != nil {
			return fmt.Errorf("insert station %s: %w", mac, err)
		}
	}

	for _, name := range sortedKeys(snap.Pcaps) {
		e := snap.Pcaps[name]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pcaps (filename, bssid, created, size_bytes, path, digest, analyzed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			name, e.BSSID, timestamp(e.Created), e.Size, e.Path, nullable(e.Digest), e.Analyzed,
		); err != nil {
			return fmt.Errorf("insert pcap %s: %w", name, err)
		}
		for _, h := range e.Analysis {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO handshakes (filename, bssid, type, ssid, client_mac, pmkid, complete, eapol_frames, messages, packet_index)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				name, h.BSSID, string(h.Kind), h.SSID, nullable(h.ClientMAC), nullable(h.PMKID),
				h.HandshakeComplete, h.EAPOLFrames, joinMessages(h.Messages), h.PacketIndex,
			); err != nil {
				return fmt.Errorf("insert handshake %s/%s: %w", name, h.BSSID, err)
			}
		}
	}
	return nil
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
