package core

import (
	"context"
	"time"
)

// FieldType is the declared type of an operation field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeNumber     FieldType = "number"
	TypeInteger    FieldType = "integer"
	TypeBoolean    FieldType = "boolean"
	TypeURL        FieldType = "url"
	TypeEmail      FieldType = "email"
	TypeCurrency   FieldType = "currency"
	TypePost       FieldType = "post"
	TypeTerm       FieldType = "term"
	TypeUser       FieldType = "user"
	TypeAttachment FieldType = "attachment"
)

var knownTypes = map[FieldType]bool{
	TypeString: true, TypeNumber: true, TypeInteger: true, TypeBoolean: true,
	TypeURL: true, TypeEmail: true, TypeCurrency: true,
	TypePost: true, TypeTerm: true, TypeUser: true, TypeAttachment: true,
}

// IsEntity reports whether values of this type reference stored records.
func (t FieldType) IsEntity() bool {
	switch t {
	case TypePost, TypeTerm, TypeUser, TypeAttachment:
		return true
	}
	return false
}

// MatchBy names an entity lookup strategy.
type MatchBy string

const (
	MatchIdentifier MatchBy = "identifier"
	MatchID         MatchBy = "id"
	MatchSlug       MatchBy = "slug"
	MatchTitle      MatchBy = "title"
	MatchName       MatchBy = "name"
	MatchMeta       MatchBy = "meta"
	MatchEmail      MatchBy = "email"
	MatchLogin      MatchBy = "login"
	MatchURL        MatchBy = "url"
	MatchFilename   MatchBy = "filename"
)

// FieldValidateFunc is a per-field custom check run after the built-in rules.
type FieldValidateFunc func(value any, row MappedRow) error

// FieldProcessFunc transforms a validated value before entity resolution.
type FieldProcessFunc func(value any, row MappedRow) (any, error)

// FieldDefinition declares one importable field of an operation.
type FieldDefinition struct {
	Key      string
	Label    string
	Type     FieldType
	Required bool
	Default  any
	Group    string

	Uppercase bool
	Lowercase bool
	Separator string

	Minimum   *float64
	Maximum   *float64
	MinLength *int
	MaxLength *int
	Pattern   string
	Options   []string
	Unique    bool

	// Entity resolution.
	MatchBy    MatchBy
	Create     bool
	Taxonomy   string
	PostType   string
	PostStatus string
	MetaKey    string
	Sideload   bool

	ValidateFunc FieldValidateFunc
	ProcessFunc  FieldProcessFunc
}

// DisplayLabel returns Label, falling back to Key.
func (f FieldDefinition) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// OperationDefinition is a named import unit registered under a page.
type OperationDefinition struct {
	PageID        string
	ID            string
	Label         string
	Description   string
	Fields        []FieldDefinition
	BatchSize     int
	SkipEmptyRows bool

	Validator RowValidator
	Processor RowProcessor
	Hooks     LifecycleHook
}

// Key returns the run key of the operation.
func (op OperationDefinition) Key() RunKey {
	return RunKey{PageID: op.PageID, OperationID: op.ID}
}

// Field returns the field with the given key.
func (op OperationDefinition) Field(key string) (FieldDefinition, bool) {
	for _, f := range op.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldMap maps field keys to CSV column headers.
type FieldMap map[string]string

// MappedRow holds the raw value of every declared field for one CSV row.
type MappedRow map[string]any

// ProcessedRow holds final field values: string, float64, int64, bool,
// []string, an entity ID (int64), a slice of IDs ([]int64), or nil.
type ProcessedRow map[string]any

// Outcome is what a row processor did with a row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// RowMeta tells a row processor where the row came from.
type RowMeta struct {
	Key    RunKey
	Row    int
	Mapped MappedRow
}

// RowValidator is an operation-level check over a fully processed row.
type RowValidator interface {
	ValidateRow(ctx context.Context, row ProcessedRow) error
}

// RowValidatorFunc adapts a function to RowValidator.
type RowValidatorFunc func(ctx context.Context, row ProcessedRow) error

func (f RowValidatorFunc) ValidateRow(ctx context.Context, row ProcessedRow) error {
	return f(ctx, row)
}

// RowProcessor persists a processed row.
type RowProcessor interface {
	ProcessRow(ctx context.Context, row ProcessedRow, meta RowMeta) (Outcome, error)
}

// RowProcessorFunc adapts a function to RowProcessor.
type RowProcessorFunc func(ctx context.Context, row ProcessedRow, meta RowMeta) (Outcome, error)

func (f RowProcessorFunc) ProcessRow(ctx context.Context, row ProcessedRow, meta RowMeta) (Outcome, error) {
	return f(ctx, row, meta)
}

// RunInfo describes a run being started.
type RunInfo struct {
	Key        RunKey
	SourceFile string
	Total      int
}

// LifecycleHook observes the start and natural completion of a run.
// BeforeImport returning an error prevents the run from starting.
type LifecycleHook interface {
	BeforeImport(ctx context.Context, run RunInfo) error
	AfterImport(ctx context.Context, key RunKey, stats RunStats)
}

// RunKey identifies the stats record of an operation.
type RunKey struct {
	PageID      string `json:"page_id"`
	OperationID string `json:"operation_id"`
}

func (k RunKey) String() string {
	return k.PageID + "/" + k.OperationID
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusNone      RunStatus = ""
	StatusRunning   RunStatus = "running"
	StatusComplete  RunStatus = "complete"
	StatusCancelled RunStatus = "cancelled"
	StatusError     RunStatus = "error"
)

// Terminal reports whether no further batches may run.
func (s RunStatus) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusError
}

// RowError is a row-scoped failure kept for reporting.
type RowError struct {
	Row     int    `json:"row"`
	Item    string `json:"item"`
	Message string `json:"message"`
}

// RunStats is the persisted progress record of an operation's latest run.
type RunStats struct {
	Total           int        `json:"total"`
	Created         int        `json:"created"`
	Updated         int        `json:"updated"`
	Skipped         int        `json:"skipped"`
	Failed          int        `json:"failed"`
	Errors          []RowError `json:"errors"`
	LastRun         time.Time  `json:"last_run"`
	Status          RunStatus  `json:"last_status"`
	SourceFile      string     `json:"source_file"`
	CancelRequested bool       `json:"cancel_requested"`
}

// Processed returns the number of rows accounted for so far.
func (s RunStats) Processed() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// BatchResult is the outcome of processing one slice of rows.
type BatchResult struct {
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors"`
	Processed  int        `json:"processed"`
	HasMore    bool       `json:"has_more"`
	NextOffset int        `json:"next_offset"`
}

// StatsStore persists one RunStats record per RunKey.
// Get returns a zero RunStats when no live record exists.
// Update applies fn to the current record and stores the result atomically.
type StatsStore interface {
	Get(ctx context.Context, key RunKey) (RunStats, error)
	Init(ctx context.Context, key RunKey, stats RunStats) error
	Update(ctx context.Context, key RunKey, fn func(*RunStats) error) (RunStats, error)
	Clear(ctx context.Context, key RunKey) error
}

// StatsPurger is implemented by stores whose expired records need sweeping.
type StatsPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// FileSource reads rows of an uploaded CSV file addressed by handle.
// Rows excludes the header row; offset 0 is the first data row, and a
// limit <= 0 reads to the end of the file.
type FileSource interface {
	Headers(ctx context.Context, handle string) ([]string, error)
	RowCount(ctx context.Context, handle string) (int, error)
	Rows(ctx context.Context, handle string, offset, limit int) ([][]string, error)
}
