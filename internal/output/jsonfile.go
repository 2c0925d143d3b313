package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/models"
)

// bulky raw keys stripped from the persisted cycle artifact
var strippedRawKeys = []string{"orderbook_raw", "ohlcv_summary"}

// JSONWriter persists each cycle's output as a timestamped JSON file
// plus a latest.json pointer for dashboards and scripts.
type JSONWriter struct {
	dir string
}

func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{dir: dir}
}

// Write stores the cycle artifact. Raw order-book and candle payloads
// are stripped first; they live in the database, not in the artifact.
func (w *JSONWriter) Write(out *models.CycleOutput) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	slim := *out
	slim.Snapshots = make(map[string]*models.VenueSnapshot, len(out.Snapshots))
	for name, snap := range out.Snapshots {
		cp := *snap
		if cp.Raw != nil {
			raw := make(map[string]interface{}, len(cp.Raw))
			for k, v := range cp.Raw {
				raw[k] = v
			}
			for _, k := range strippedRawKeys {
				delete(raw, k)
			}
			cp.Raw = raw
		}
		slim.Snapshots[name] = &cp
	}

	data, err := json.MarshalIndent(&slim, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cycle output: %w", err)
	}

	name := fmt.Sprintf("monitor_%s.json", out.Timestamp.UTC().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cycle output: %w", err)
	}

	latest := filepath.Join(w.dir, "latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write latest output: %w", err)
	}

	log.Debug().Str("path", path).Msg("cycle artifact written")
	return nil
}
