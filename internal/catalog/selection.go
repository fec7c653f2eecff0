package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for section selection.
var (
	ErrNoSectionsChosen = errors.New("please choose at least one slide template")
	ErrUnknownSection   = errors.New("unknown section")
)

// DefaultSelection returns the orders of the sections pre-checked in the form.
func DefaultSelection(sections []Section) []int {
	orders := make([]int, 0, len(sections))
	for _, s := range sections {
		if s.IsDefault {
			orders = append(orders, s.Order)
		}
	}
	return orders
}

// Split partitions sections into chosen and deleted by order value, keeping
// catalog order in both lists.
func Split(sections []Section, chosenOrders []int) (chosen, deleted []Section, err error) {
	if len(chosenOrders) == 0 {
		return nil, nil, ErrNoSectionsChosen
	}

	known := make(map[int]bool, len(sections))
	for _, s := range sections {
		known[s.Order] = true
	}

	picked := make(map[int]bool, len(chosenOrders))
	for _, order := range chosenOrders {
		if !known[order] {
			return nil, nil, fmt.Errorf("%w: order %d", ErrUnknownSection, order)
		}
		picked[order] = true
	}

	for _, s := range sections {
		if picked[s.Order] {
			chosen = append(chosen, s)
		} else {
			deleted = append(deleted, s)
		}
	}
	return chosen, deleted, nil
}
