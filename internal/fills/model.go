// Package fills deterministically matches intents against the bars
// snapshot. It is the single source of truth for fill timestamp, price,
// and reason; nothing downstream may re-derive any of the three.
package fills

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// Generate matches each intent against the exec bars. The baseline rule:
// the bar whose timestamp equals signal_ts fills at that bar's close with
// reason signal_fill; an intent off the bar grid is rejected without a
// fill. Empty bars are a hard error; empty intents yield an empty frame
// with a stable hash.
func Generate(intents *domain.IntentFrame, bars *domain.BarFrame) (*domain.FillFrame, error) {
	if bars.Len() == 0 {
		return nil, &domain.FillModelError{Reason: "empty bars snapshot"}
	}
	out := &domain.FillFrame{}
	if intents.Len() == 0 {
		log.Warn().Msg("empty intent stream, no fills to generate")
		return out, nil
	}

	rejected := 0
	for _, it := range intents.Intents {
		bar, ok := bars.At(it.SignalTs)
		if !ok {
			rejected++
			log.Debug().
				Str("template_id", it.TemplateID).
				Time("signal_ts", it.SignalTs).
				Msg("intent off the bar grid, rejected")
			continue
		}
		out.Fills = append(out.Fills, domain.Fill{
			TemplateID: it.TemplateID,
			Symbol:     it.Symbol,
			FillTs:     bar.Ts,
			FillPrice:  bar.Close,
			Reason:     domain.FillSignal,
		})
	}

	log.Info().
		Int("intents", intents.Len()).
		Int("fills", out.Len()).
		Int("rejected", rejected).
		Msg("fills generated")
	return out, nil
}

var csvColumns = []string{"template_id", "symbol", "fill_ts", "fill_price", "reason"}

// CanonicalCSV renders the fills in canonical byte form. Row order follows
// the intent stream order by contract.
func CanonicalCSV(f *domain.FillFrame) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, fl := range f.Fills {
		rec := []string{
			fl.TemplateID,
			fl.Symbol,
			fl.FillTs.UTC().Format(time.RFC3339),
			strconv.FormatFloat(fl.FillPrice, 'g', -1, 64),
			string(fl.Reason),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Hash returns the fills fingerprint, stable for the empty frame.
func Hash(f *domain.FillFrame) (string, error) {
	data, err := CanonicalCSV(f)
	if err != nil {
		return "", err
	}
	return fsio.SHA256Bytes(data), nil
}

// WriteCSV persists the canonical CSV as the fills artifact.
func WriteCSV(path string, f *domain.FillFrame) (string, error) {
	data, err := CanonicalCSV(f)
	if err != nil {
		return "", err
	}
	if err := fsio.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return fsio.SHA256Bytes(data), nil
}
