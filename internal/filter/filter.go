// Package filter compiles expr-lang expressions that select registry
// records, e.g. `encryption == "WPA2" && beacons > 100` or
// `essid contains "Cafe"`.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wifibear/capvault/pkg/wifi"
)

// AccessPointEnv exposes an access point record to filter expressions.
type AccessPointEnv struct {
	BSSID      string   `expr:"bssid"`
	ESSID      string   `expr:"essid"`
	History    []string `expr:"history"`
	Channel    string   `expr:"channel"`
	Encryption string   `expr:"encryption"`
	Packets    int      `expr:"packets"`
	Beacons    int      `expr:"beacons"`
	Hidden     bool     `expr:"hidden"`
	// FirstSeen and LastSeen are Unix seconds, zero when unknown.
	FirstSeen int64 `expr:"first_seen"`
	LastSeen  int64 `expr:"last_seen"`
	// Age is the number of seconds since the record was last seen.
	Age int64 `expr:"age"`
}

// StationEnv exposes a station record to filter expressions.
type StationEnv struct {
	MAC        string   `expr:"mac"`
	BSSID      string   `expr:"bssid"`
	Associated bool     `expr:"associated"`
	Probes     []string `expr:"probes"`
	Packets    int      `expr:"packets"`
	FirstSeen  int64    `expr:"first_seen"`
	LastSeen   int64    `expr:"last_seen"`
	Age        int64    `expr:"age"`
}

// Now is the clock used for the age field.
var Now = time.Now

// CompileAccessPoints compiles src into a predicate over access point
// records. An empty expression matches everything.
func CompileAccessPoints(src string) (func(wifi.AccessPoint) bool, error) {
	program, err := compile(src, AccessPointEnv{})
	if err != nil || program == nil {
		return matchAll[wifi.AccessPoint], err
	}
	return func(ap wifi.AccessPoint) bool {
		return run(program, accessPointEnv(ap))
	}, nil
}

// CompileStations compiles src into a predicate over station records.
func CompileStations(src string) (func(wifi.Station) bool, error) {
	program, err := compile(src, StationEnv{})
	if err != nil || program == nil {
		return matchAll[wifi.Station], err
	}
	return func(st wifi.Station) bool {
		return run(program, stationEnv(st))
	}, nil
}

func compile(src string, env any) (*vm.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter '%s': %w", src, err)
	}
	return program, nil
}

func run(program *vm.Program, env any) bool {
	result, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

func matchAll[T any](T) bool { return true }

func accessPointEnv(ap wifi.AccessPoint) AccessPointEnv {
	return AccessPointEnv{
		BSSID:      ap.BSSID,
		ESSID:      ap.ESSID,
		History:    ap.ESSIDHistory,
		Channel:    ap.Channel,
		Encryption: ap.Encryption,
		Packets:    int(ap.Packets),
		Beacons:    int(ap.Beacons),
		Hidden:     ap.ESSID == "" || ap.ESSID == wifi.HiddenESSID,
		FirstSeen:  unix(ap.FirstSeen),
		LastSeen:   unix(ap.LastSeen),
		Age:        age(ap.LastSeen),
	}
}

func stationEnv(st wifi.Station) StationEnv {
	var probes []string
	for _, p := range strings.Split(st.ProbedESSIDs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			probes = append(probes, p)
		}
	}
	return StationEnv{
		MAC:        st.MAC,
		BSSID:      st.AssociatedBSSID,
		Associated: st.AssociatedBSSID != "",
		Probes:     probes,
		Packets:    int(st.Packets),
		FirstSeen:  unix(st.FirstSeen),
		LastSeen:   unix(st.LastSeen),
		Age:        age(st.LastSeen),
	}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func age(last time.Time) int64 {
	if last.IsZero() {
		return 0
	}
	return int64(Now().Sub(last) / time.Second)
}
