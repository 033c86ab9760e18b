// Package world holds the static arena description and the mutable per-run
// task context shared by every behavior of a mission.
package world

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a named place. It drives which approach strategy the
// navigation behavior uses.
type Kind int

const (
	KindUnknown Kind = iota
	KindStandby
	KindRoom
	KindTable
	KindHuman
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindStandby: "standby",
	KindRoom:    "room",
	KindTable:   "table",
	KindHuman:   "human",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a kind name to a Kind. Unrecognized names are Unknown and
// reported through ok=false.
func ParseKind(name string) (kind Kind, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// Location is a named place on the navigation map.
type Location struct {
	Name string
	Kind Kind
}

// Arm names a single manipulator. The zero value means no arm.
type Arm string

const (
	ArmNone  Arm = ""
	ArmLeft  Arm = "left"
	ArmRight Arm = "right"
)

// ArmSet is the set of enabled manipulators.
type ArmSet int

const (
	ArmsNone ArmSet = iota
	ArmsLeft
	ArmsRight
	ArmsBoth
)

// String returns a readable name for the arm set.
func (s ArmSet) String() string {
	switch s {
	case ArmsLeft:
		return "left"
	case ArmsRight:
		return "right"
	case ArmsBoth:
		return "both"
	default:
		return "none"
	}
}

// Poses are the named arm configurations the behaviors use.
type Poses struct {
	Navigation           string `yaml:"navigation"`
	NavigationWithObject string `yaml:"navigation_with_object"`
	Home                 string `yaml:"home"`
	Drop                 string `yaml:"drop"`
}

// ArmsSpec enables manipulators and names their poses.
type ArmsSpec struct {
	Left  bool  `yaml:"left"`
	Right bool  `yaml:"right"`
	Poses Poses `yaml:"poses"`
}

// Places are the fixed mission waypoints.
type Places struct {
	Entrance string `yaml:"entrance"`
	Operator string `yaml:"operator"`
	Exit     string `yaml:"exit"`
}

// Phrases are the canned sentences spoken by the mission and its behaviors.
type Phrases struct {
	WaitForCommand     string `yaml:"wait_for_command"`
	RepeatCommand      string `yaml:"repeat_command"`
	DidYouSay          string `yaml:"did_you_say"`
	ConfirmPrompt      string `yaml:"confirm_prompt"`
	SentenceNotParsed  string `yaml:"sentence_not_parsed"`
	LeavingArena       string `yaml:"leaving_arena"`
	Identity           string `yaml:"identity"`
	LocationReached    string `yaml:"location_reached"`
	LocationNotReached string `yaml:"location_not_reached"`
	ObjectTaken        string `yaml:"object_taken"`
	ObjectNotTaken     string `yaml:"object_not_taken"`
	TakeObjectFromMe   string `yaml:"take_object_from_me"`
	AskQuestion        string `yaml:"ask_question"`
	CannotHear         string `yaml:"cannot_hear"`
}

// Spec is the serializable description of an arena. Locations map a place
// name to its kind name; BringTargets map a spoken alias to a place name.
type Spec struct {
	Locations    map[string]string `yaml:"locations"`
	BringTargets map[string]string `yaml:"bring_targets"`
	Arms         ArmsSpec          `yaml:"arms"`
	Places       Places            `yaml:"places"`
	Phrases      Phrases           `yaml:"phrases"`
	BringToHuman bool              `yaml:"bring_to_human"`
}

// DefaultSpec describes the arena used in the household trials.
func DefaultSpec() Spec {
	return Spec{
		Locations: map[string]string{
			"gpsrLoc":          "standby",
			"entrancelocation": "standby",
			"exit":             "standby",
			"kitchen":          "room",
			"loc2":             "room",
		},
		BringTargets: map[string]string{
			"me_location": "gpsrLoc",
			"living_room": "loc2",
			"kitchen":     "kitchen",
			"exit":        "exit",
		},
		Arms: ArmsSpec{
			Left:  true,
			Right: true,
			Poses: Poses{
				Navigation:           "standby",
				NavigationWithObject: "navigation",
				Home:                 "home",
				Drop:                 "drop",
			},
		},
		Places: Places{
			Entrance: "entrancelocation",
			Operator: "gpsrLoc",
			Exit:     "exit",
		},
		Phrases: Phrases{
			WaitForCommand:     "Hello human! I'm waiting for a command.",
			RepeatCommand:      "Ok. Please repeat the command.",
			DidYouSay:          "Did you say:",
			ConfirmPrompt:      "Please answer yes or no.",
			SentenceNotParsed:  "I understand your command but I am not able to perform it. I'm so sorry!",
			LeavingArena:       "I'm leaving the arena.",
			Identity:           "Hello I'm the robot Justina",
			LocationReached:    "I reach the location.",
			LocationNotReached: "I can't reach the location.",
			ObjectTaken:        "I got it.",
			ObjectNotTaken:     "I can't take the object.",
			TakeObjectFromMe:   "Human please get close to me and take the object.",
			AskQuestion:        "Make me a question.",
			CannotHear:         "Human I can't hear you. I will try to continue with the test.",
		},
	}
}

// World is the validated, read-only arena model.
type World struct {
	locations    map[string]Location
	bringTargets map[string]string
	arms         ArmSet
	poses        Poses
	places       Places
	phrases      Phrases
	bringToHuman bool
}

// New validates a Spec and builds a World from it.
func New(spec Spec) (*World, error) {
	w := &World{
		locations:    make(map[string]Location, len(spec.Locations)),
		bringTargets: make(map[string]string, len(spec.BringTargets)),
		poses:        spec.Arms.Poses,
		places:       spec.Places,
		phrases:      spec.Phrases,
		bringToHuman: spec.BringToHuman,
	}

	for name, kindName := range spec.Locations {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("location with empty name")
		}
		kind, ok := ParseKind(kindName)
		if !ok {
			return nil, fmt.Errorf("location %q: unknown kind %q", name, kindName)
		}
		w.locations[name] = Location{Name: name, Kind: kind}
	}

	for alias, place := range spec.BringTargets {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(place) == "" {
			return nil, fmt.Errorf("bring target %q -> %q: alias and place required", alias, place)
		}
		w.bringTargets[alias] = place
	}

	switch {
	case spec.Arms.Left && spec.Arms.Right:
		w.arms = ArmsBoth
	case spec.Arms.Left:
		w.arms = ArmsLeft
	case spec.Arms.Right:
		w.arms = ArmsRight
	default:
		w.arms = ArmsNone
	}

	return w, nil
}

// Location looks up a place by name.
func (w *World) Location(name string) (Location, bool) {
	loc, ok := w.locations[name]
	return loc, ok
}

// KindOf returns the kind of a place, or KindUnknown when it is not on the map.
func (w *World) KindOf(name string) Kind {
	if loc, ok := w.locations[name]; ok {
		return loc.Kind
	}
	return KindUnknown
}

// Locations returns all place names in sorted order.
func (w *World) Locations() []string {
	names := make([]string, 0, len(w.locations))
	for name := range w.locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTarget maps a spoken alias to its default place.
func (w *World) ResolveTarget(alias string) (string, bool) {
	place, ok := w.bringTargets[alias]
	return place, ok
}

// EnabledArms returns which manipulators may be commanded.
func (w *World) EnabledArms() ArmSet {
	return w.arms
}

// Poses returns the named arm poses.
func (w *World) Poses() Poses {
	return w.poses
}

// Places returns the fixed mission waypoints.
func (w *World) Places() Places {
	return w.places
}

// Phrases returns the canned sentences.
func (w *World) Phrases() Phrases {
	return w.phrases
}

// BringToHuman reports whether deliveries hand the object to a person.
func (w *World) BringToHuman() bool {
	return w.bringToHuman
}

// DeliverPhrase builds the sentence spoken when handing over an object.
func DeliverPhrase(objectName, personName string) string {
	return strings.TrimSpace("Here is your " + objectName + " " + personName)
}
