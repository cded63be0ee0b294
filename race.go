// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

// Gender of the character.
type Gender uint8

const (
	GenderMale Gender = iota
	GenderFemale
)

// Race is one of the major playable races.
type Race uint8

const (
	RaceHyur Race = iota
	RaceElezen
	RaceLalafell
	RaceMiqote
	RaceRoegadyn
	RaceAuRa
	RaceHrothgar
	RaceViera
)

// Subrace of a race. Each race has two subraces which are identical down
// to the ids, except for Hyur, whose two subraces are really two separate
// races.
type Subrace uint8

const (
	SubraceMidlander Subrace = iota
	SubraceHighlander
	SubraceWildwood
	SubraceDuskwight
	SubracePlainsfolk
	SubraceDunesfolk
	SubraceSeeker
	SubraceKeeper
	SubraceSeaWolf
	SubraceHellsguard
	SubraceRaen
	SubraceXaela
	SubraceHellion
	SubraceLost
	SubraceRava
	SubraceVeena
)

// raceKey folds a (race, subrace, gender) triple into one table key. Only
// Hyur distinguishes subraces; every other race collapses its two.
type raceKey struct {
	race       Race
	gender     Gender
	highlander bool
}

// raceIDs is the identifier table used to build character asset paths.
var raceIDs = map[raceKey]int{
	{RaceHyur, GenderMale, false}:   101,
	{RaceHyur, GenderFemale, false}: 201,
	{RaceHyur, GenderMale, true}:    301,
	{RaceHyur, GenderFemale, true}:  401,

	{RaceElezen, GenderMale, false}:   501,
	{RaceElezen, GenderFemale, false}: 601,

	{RaceMiqote, GenderMale, false}:   701,
	{RaceMiqote, GenderFemale, false}: 801,

	{RaceRoegadyn, GenderMale, false}:   901,
	{RaceRoegadyn, GenderFemale, false}: 1001,

	{RaceLalafell, GenderMale, false}:   1101,
	{RaceLalafell, GenderFemale, false}: 1201,

	{RaceAuRa, GenderMale, false}:   1301,
	{RaceAuRa, GenderFemale, false}: 1401,

	{RaceHrothgar, GenderMale, false}:   1501,
	{RaceHrothgar, GenderFemale, false}: 1601,

	{RaceViera, GenderMale, false}:   1701,
	{RaceViera, GenderFemale, false}: 1801,
}

// GetRaceID returns the numeric race identifier (such as 101 for
// Hyur-Midlander-Males) used in character asset paths. The bool is false
// for combinations with no identifier.
func GetRaceID(race Race, subrace Subrace, gender Gender) (int, bool) {
	id, ok := raceIDs[raceKey{
		race:       race,
		gender:     gender,
		highlander: race == RaceHyur && subrace == SubraceHighlander,
	}]
	return id, ok
}
