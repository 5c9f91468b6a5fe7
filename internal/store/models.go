package store

import (
	"encoding/json"
	"time"
)

// Lucidity levels offered by the entry form. The store does not enforce them.
const (
	LucidityNone  = "Non-lucid"
	LuciditySemi  = "Semi-lucid"
	LucidityFully = "Fully lucid"
)

type RealityCheck struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}

type DreamEntry struct {
	ID               int64          `json:"id"`
	Date             string         `json:"date"` // ISO-8601, the dream's date rather than the insert time
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	LucidityLevel    string         `json:"lucidityLevel,omitempty"`
	Tags             []string       `json:"tags"`
	Emotions         []string       `json:"emotions"`
	RealityChecks    []RealityCheck `json:"realityChecks"`
	LucidityTriggers []string       `json:"lucidityTriggers"`
}

// NewDreamEntry carries the fields for an insert. Empty lists and an empty
// lucidity level are stored as NULL.
type NewDreamEntry struct {
	Date             string         `json:"date"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	LucidityLevel    string         `json:"lucidityLevel,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Emotions         []string       `json:"emotions,omitempty"`
	RealityChecks    []RealityCheck `json:"realityChecks,omitempty"`
	LucidityTriggers []string       `json:"lucidityTriggers,omitempty"`
}

// Optional distinguishes "leave unchanged" (the zero value) from "set to v".
type Optional[T any] struct {
	value T
	set   bool
}

func Set[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool {
	return o.set
}

// UnmarshalJSON marks the field as set whenever its key is present,
// including an explicit null, which sets the zero value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	var v T
	if string(data) != "null" {
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
	}
	o.value = v
	o.set = true
	return nil
}

// DreamUpdate is a partial update: only set fields are written.
type DreamUpdate struct {
	Date             Optional[string]         `json:"date"`
	Title            Optional[string]         `json:"title"`
	Description      Optional[string]         `json:"description"`
	LucidityLevel    Optional[string]         `json:"lucidityLevel"`
	Tags             Optional[[]string]       `json:"tags"`
	Emotions         Optional[[]string]       `json:"emotions"`
	RealityChecks    Optional[[]RealityCheck] `json:"realityChecks"`
	LucidityTriggers Optional[[]string]       `json:"lucidityTriggers"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

type ConversationMessage struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type SortField string

const (
	SortByDate  SortField = "date"
	SortByTitle SortField = "title"
)

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// DateFilter matches either one exact date (On) or an inclusive range.
// Dates compare as strings, which is chronological for ISO-8601 values.
type DateFilter struct {
	On        string `json:"on,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

func ExactDate(date string) *DateFilter {
	return &DateFilter{On: date}
}

func DateRange(start, end string) *DateFilter {
	return &DateFilter{StartDate: start, EndDate: end}
}

// FetchOptions are the journal list filters. Zero values impose no constraint.
type FetchOptions struct {
	SearchQuery         string
	DateFilter          *DateFilter
	LucidityLevelFilter string
	TagsFilter          []string
	SortBy              SortField
	SortOrder           SortOrder
}
