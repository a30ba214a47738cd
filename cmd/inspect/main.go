package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-core/internal/memory"
	"github.com/danielpatrickdp/persona-core/internal/pattern"
	"github.com/danielpatrickdp/persona-core/internal/provenance"
	"github.com/danielpatrickdp/persona-core/internal/relationship"
	"github.com/danielpatrickdp/persona-core/internal/storage"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to persona_core.db")
	persona := flag.String("persona", "default", "persona id")
	last := flag.Int("last", 20, "show N most recent entries")
	turns := flag.Bool("turns", false, "show the turn log instead of state versions")
	clusters := flag.Bool("clusters", false, "show the active cluster snapshot")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/persona_core.db [--persona id] [--last N] [--turns] [--clusters] [--json]")
		os.Exit(2)
	}

	db, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch {
	case *clusters:
		err = runClusterMode(db, *persona, *jsonOut)
	case *turns:
		err = runTurnMode(db, *persona, *last, *jsonOut)
	default:
		err = runVersionMode(db, *persona, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region version-mode

type versionRow struct {
	Version   int64   `json:"version"`
	Stage     string  `json:"stage"`
	Trust     float64 `json:"trust"`
	Depth     float64 `json:"connection_depth"`
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
	Stability float64 `json:"stability"`
	UpdatedAt string  `json:"updated_at"`
}

func runVersionMode(db *sql.DB, persona string, last int, jsonOut bool) error {
	states, err := relationship.NewStore(db)
	if err != nil {
		return err
	}
	history, err := states.History(persona, last)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	rows := make([]versionRow, len(history))
	for i, st := range history {
		rows[i] = versionRow{
			Version:   st.Meta.Version,
			Stage:     string(st.Relation.Stage),
			Trust:     st.Relation.Trust,
			Depth:     st.Relation.ConnectionDepth,
			Emotion:   string(st.Emotional.Primary),
			Intensity: st.Emotional.Intensity,
			Stability: st.Meta.Stability,
			UpdatedAt: st.Meta.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-8s  %-12s  %6s  %6s  %-10s  %9s  %9s  %s\n",
		"Version", "Stage", "Trust", "Depth", "Emotion", "Intensity", "Stability", "Updated")
	for _, r := range rows {
		fmt.Printf("%-8d  %-12s  %6.3f  %6.3f  %-10s  %9.3f  %9.3f  %s\n",
			r.Version, r.Stage, r.Trust, r.Depth, r.Emotion, r.Intensity, r.Stability, r.UpdatedAt)
	}
	return nil
}

// #endregion version-mode

// #region turn-mode

type turnRow struct {
	Version   int64  `json:"version"`
	Decision  string `json:"decision"`
	Dominant  string `json:"dominant,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runTurnMode(db *sql.DB, persona string, last int, jsonOut bool) error {
	entries, err := provenance.Recent(db, persona, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no turns found")
		return nil
	}

	rows := make([]turnRow, len(entries))
	for i, e := range entries {
		row := turnRow{
			Version:   e.Version,
			Decision:  e.Decision,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if e.RecordJSON != "" {
			var rec provenance.TurnRecord
			if err := json.Unmarshal([]byte(e.RecordJSON), &rec); err == nil {
				row.Dominant = rec.Dominant
				row.Degraded = rec.Degraded
			}
		}
		rows[i] = row
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-8s  %-10s  %-10s  %-8s  %s\n", "Version", "Decision", "Dominant", "Degraded", "Time")
	for _, r := range rows {
		fmt.Printf("%-8d  %-10s  %-10s  %-8v  %s\n",
			r.Version, r.Decision, r.Dominant, r.Degraded, r.CreatedAt)
	}
	return nil
}

// #endregion turn-mode

// #region cluster-mode

type clusterRow struct {
	ID        string  `json:"id"`
	Members   int     `json:"members"`
	Stability float64 `json:"stability"`
	FormedAt  string  `json:"formed_at"`
}

func runClusterMode(db *sql.DB, persona string, jsonOut bool) error {
	memories, err := memory.NewStore(db)
	if err != nil {
		return err
	}
	engine, err := pattern.NewEngine(db, memories, pattern.DefaultConfig())
	if err != nil {
		return err
	}
	active, err := engine.Active(persona)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Fprintln(os.Stderr, "no clusters found")
		return nil
	}

	rows := make([]clusterRow, len(active))
	for i, c := range active {
		rows[i] = clusterRow{
			ID:        c.ID,
			Members:   len(c.Members),
			Stability: c.Stability,
			FormedAt:  c.FormedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-36s  %8s  %9s  %s\n", "Cluster", "Members", "Stability", "Formed")
	for _, r := range rows {
		fmt.Printf("%-36s  %8d  %9.3f  %s\n", r.ID, r.Members, r.Stability, r.FormedAt)
	}
	return nil
}

// #endregion cluster-mode

// #region helpers

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
