package commands

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/deploykit/winprov/lib/plan"
)

// splitPattern separates comma- and space-delimited selection items.
var splitPattern = regexp.MustCompile(`[,\s]+`)

// ParseDiskSelection parses a slot selection expression into a sorted,
// de-duplicated slot list. Accepted forms: a single slot ("3"), a range
// ("1-3"), a list ("1,3,5" or "1 3 5"), any mix of those ("1,3-5"), and
// "a"/"all" for every slot.
func ParseDiskSelection(input string) ([]int, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil, fmt.Errorf("disk selection is empty")
	}

	if input == "a" || input == "all" {
		all := make([]int, 0, plan.SlotCount)
		for i := 1; i <= plan.SlotCount; i++ {
			all = append(all, i)
		}
		return all, nil
	}

	seen := make(map[int]struct{})
	for _, item := range splitPattern.Split(input, -1) {
		if item == "" {
			continue
		}
		if err := parseSelectionItem(item, seen); err != nil {
			return nil, err
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("disk selection %q names no slots", input)
	}

	slots := make([]int, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots, nil
}

func parseSelectionItem(item string, seen map[int]struct{}) error {
	if start, end, ok := strings.Cut(item, "-"); ok {
		lo, err := parseSlot(start)
		if err != nil {
			return fmt.Errorf("bad range %q: %w", item, err)
		}
		hi, err := parseSlot(end)
		if err != nil {
			return fmt.Errorf("bad range %q: %w", item, err)
		}
		if lo > hi {
			return fmt.Errorf("range %q runs backwards", item)
		}
		for slot := lo; slot <= hi; slot++ {
			seen[slot] = struct{}{}
		}
		return nil
	}

	slot, err := parseSlot(item)
	if err != nil {
		return err
	}
	seen[slot] = struct{}{}
	return nil
}

func parseSlot(s string) (int, error) {
	slot, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a slot number", s)
	}
	if slot < 1 || slot > plan.SlotCount {
		return 0, fmt.Errorf("slot %d out of range 1-%d", slot, plan.SlotCount)
	}
	return slot, nil
}
