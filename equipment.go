// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import "fmt"

// Slot is the equipment slot an item is for.
type Slot uint8

const (
	// SlotHead is the head slot, shorthand "met".
	SlotHead Slot = iota
	// SlotHands is the hands slot, shorthand "glv".
	SlotHands
	// SlotLegs is the legs slot, shorthand "dwn".
	SlotLegs
	// SlotFeet is the feet slot, shorthand "sho".
	SlotFeet
	// SlotBody is the body or chest slot, shorthand "top".
	SlotBody
	// SlotEarring is the earrings slot, shorthand "ear".
	SlotEarring
	// SlotNeck is the neck slot, shorthand "nek".
	SlotNeck
	// SlotRings is the ring slot, shorthand "rir".
	SlotRings
	// SlotWrists is the wrists slot, shorthand "wrs".
	SlotWrists
)

// slotInfo pairs each slot with its path shorthand and numeric id.
var slotInfo = map[Slot]struct {
	abbreviation string
	id           int
}{
	SlotHead:    {"met", 3},
	SlotHands:   {"glv", 5},
	SlotLegs:    {"dwn", 7},
	SlotFeet:    {"sho", 8},
	SlotBody:    {"top", 4},
	SlotEarring: {"ear", 9},
	SlotNeck:    {"nek", 10},
	SlotRings:   {"rir", 12},
	SlotWrists:  {"wrs", 11},
}

// GetSlotAbbreviation returns the shorthand of slot; Body's shorthand is
// "top", for example.
func GetSlotAbbreviation(slot Slot) string {
	return slotInfo[slot].abbreviation
}

// GetSlotFromID resolves a numeric slot id. The bool is false for ids
// that match no slot.
func GetSlotFromID(id int) (Slot, bool) {
	for slot, info := range slotInfo {
		if info.id == id {
			return slot, true
		}
	}
	return 0, false
}

// BuildEquipmentPath builds the logical path of an equipment model, e.g.
// "chara/equipment/e0000/model/c0101e0000_top.mdl".
func BuildEquipmentPath(modelID int, race Race, subrace Subrace,
	gender Gender, slot Slot) (string, bool) {

	raceID, ok := GetRaceID(race, subrace, gender)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("chara/equipment/e%04d/model/c%04de%04d_%s.mdl",
		modelID, raceID, modelID, GetSlotAbbreviation(slot)), true
}
