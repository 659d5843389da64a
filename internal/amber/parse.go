package amber

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// usageEntry is the subset of an interval the balance needs. Older payloads
// used "energy" and "channel" instead of "kwh" and "channelType".
type usageEntry struct {
	Date        string   `json:"date"`
	Cost        *float64 `json:"cost"`
	KWh         *float64 `json:"kwh"`
	Energy      *float64 `json:"energy"`
	ChannelType string   `json:"channelType"`
	Channel     string   `json:"channel"`
}

func (e usageEntry) record() (models.UsageRecord, bool) {
	date, err := models.ParseDate(strings.TrimSpace(e.Date))
	if err != nil {
		return models.UsageRecord{}, false
	}

	rec := models.UsageRecord{Date: date, Channel: e.ChannelType}
	if rec.Channel == "" {
		rec.Channel = e.Channel
	}
	if e.Cost != nil {
		rec.Cost = *e.Cost
	}
	switch {
	case e.KWh != nil:
		rec.KWh = *e.KWh
	case e.Energy != nil:
		rec.KWh = *e.Energy
	}
	return rec, true
}

// parseUsage decodes a usage payload one element at a time so a single bad
// interval cannot sink the batch. It returns the valid records and the number
// dropped. A body that is not JSON is an error; valid JSON other than an
// array yields no records.
func parseUsage(body []byte) ([]models.UsageRecord, int, error) {
	var top jsontext.Value
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, 0, err
	}
	if top.Kind() != '[' {
		return nil, 0, nil
	}

	var raw []jsontext.Value
	if err := json.Unmarshal(top, &raw); err != nil {
		return nil, 0, err
	}

	records := make([]models.UsageRecord, 0, len(raw))
	dropped := 0
	for _, v := range raw {
		var entry usageEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			dropped++
			continue
		}
		rec, ok := entry.record()
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped, nil
}

// parseSites extracts site ids, accepting "id", "siteId" or "site_id"
func parseSites(body []byte) ([]string, error) {
	var raw jsontext.Value
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing sites response: %w", err)
	}
	if raw.Kind() != '[' {
		return nil, nil
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing sites response: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		for _, key := range []string{"id", "siteId", "site_id"} {
			if id := idString(entry[key]); id != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
