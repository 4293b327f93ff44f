package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Table is the repeating duty timetable: a fixed number of one-hour slots per
// variant, a common sub-table valid in every variant, and the named variants
// covering the rest. Immutable after load.
type Table struct {
	Epoch           time.Time
	SlotsPerVariant int
	Common          map[int]string
	Variants        []Variant
}

type Variant struct {
	Name  string
	Slots map[int]string
}

// CycleHours is the full cycle length in hour-slots.
func (t Table) CycleHours() int {
	return t.SlotsPerVariant * len(t.Variants)
}

func (t Table) validate() error {
	if t.SlotsPerVariant <= 0 {
		return errors.New("slots_per_variant must be > 0")
	}
	if len(t.Variants) == 0 {
		return errors.New("at least one variant is required")
	}
	if t.Epoch.IsZero() {
		return errors.New("epoch is required")
	}
	for slot := 0; slot < t.SlotsPerVariant; slot++ {
		if _, ok := t.Common[slot]; ok {
			continue
		}
		for _, v := range t.Variants {
			if _, ok := v.Slots[slot]; !ok {
				return fmt.Errorf("variant %q has no entry for slot %d", v.Name, slot)
			}
		}
	}
	return nil
}

// Default cycle: 30 hours, three 10-hour variants anchored at the corps'
// first muster. Slot 0 of every variant is the joint all-corps hour.
var defaultTable = Table{
	Epoch:           time.Date(2025, 1, 22, 13, 0, 0, 0, jst),
	SlotsPerVariant: 10,
	Common: map[int]string{
		0: "合同防衛",
	},
	Variants: []Variant{
		{Name: "甲", Slots: map[int]string{
			1: "第一隊", 2: "第二隊", 3: "第三隊", 4: "第四隊", 5: "第五隊",
			6: "第六隊", 7: "第七隊", 8: "第八隊", 9: "第九隊",
		}},
		{Name: "乙", Slots: map[int]string{
			1: "第十隊", 2: "第十一隊", 3: "第十二隊", 4: "第十三隊", 5: "第十四隊",
			6: "第十五隊", 7: "第十六隊", 8: "第十七隊", 9: "第十八隊",
		}},
		{Name: "丙", Slots: map[int]string{
			1: "第十九隊", 2: "第二十隊", 3: "第二十一隊", 4: "第二十二隊", 5: "第二十三隊",
			6: "第二十四隊", 7: "第二十五隊", 8: "第二十六隊", 9: "第二十七隊",
		}},
	},
}

var jst = time.FixedZone("JST", 9*60*60)

// tableConfig is the JSON shape of a table override. Slot keys are strings
// because JSON objects cannot have numeric keys.
type tableConfig struct {
	Epoch           string            `json:"epoch,omitempty"`
	SlotsPerVariant int               `json:"slots_per_variant,omitempty"`
	Common          map[string]string `json:"common,omitempty"`
	Variants        []variantConfig   `json:"variants,omitempty"`
}

type variantConfig struct {
	Name  string            `json:"name"`
	Slots map[string]string `json:"slots"`
}

func parseTable(raw json.RawMessage, loc *time.Location) (Table, error) {
	var tc tableConfig
	if err := json.Unmarshal(raw, &tc); err != nil {
		return Table{}, err
	}
	t := Table{SlotsPerVariant: tc.SlotsPerVariant}

	if tc.Epoch != "" {
		epoch, err := time.ParseInLocation(time.RFC3339, tc.Epoch, loc)
		if err != nil {
			return Table{}, fmt.Errorf("epoch: %w", err)
		}
		t.Epoch = epoch
	}

	common, err := slotMap(tc.Common)
	if err != nil {
		return Table{}, fmt.Errorf("common: %w", err)
	}
	t.Common = common

	for _, vc := range tc.Variants {
		slots, err := slotMap(vc.Slots)
		if err != nil {
			return Table{}, fmt.Errorf("variant %q: %w", vc.Name, err)
		}
		t.Variants = append(t.Variants, Variant{Name: vc.Name, Slots: slots})
	}

	if err := t.validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

func slotMap(in map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(in))
	for k, v := range in {
		slot, err := strconv.Atoi(k)
		if err != nil || slot < 0 {
			return nil, fmt.Errorf("bad slot key %q", k)
		}
		out[slot] = v
	}
	return out, nil
}
