package history

import (
	"os"
	"os/user"
	"sort"
	"time"

	"github.com/google/uuid"
)

// OperationKind classifies a history entry.
type OperationKind string

const (
	OpSwitch   OperationKind = "switch"
	OpBackup   OperationKind = "backup"
	OpRestore  OperationKind = "restore"
	OpValidate OperationKind = "validate"
	OpUpdate   OperationKind = "update"
)

// OperationKinds lists the known kinds in display order.
var OperationKinds = []OperationKind{OpSwitch, OpBackup, OpRestore, OpValidate, OpUpdate}

// Valid reports whether k is a known kind.
func (k OperationKind) Valid() bool {
	for _, known := range OperationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status is the outcome of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
)

// Result records the outcome and an optional message.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success reports a completed operation.
func Success() Result { return Result{Status: StatusSuccess} }

// Failure reports a failed operation.
func Failure(message string) Result { return Result{Status: StatusFailure, Message: message} }

// Warning reports an operation that completed with caveats.
func Warning(message string) Result { return Result{Status: StatusWarning, Message: message} }

func (r Result) IsSuccess() bool { return r.Status == StatusSuccess }

func (r Result) IsFailure() bool { return r.Status == StatusFailure }

// Details describes what the operation touched.
type Details struct {
	FromProfile string `json:"from_profile,omitempty"`
	ToProfile   string `json:"to_profile,omitempty"`
	BackupPath  string `json:"backup_path,omitempty"`
	Extra       string `json:"extra,omitempty"`
}

// EnvChange is one variable's before and after value. A nil value means the
// variable was unset.
type EnvChange struct {
	VarName  string  `json:"var_name"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue *string `json:"new_value,omitempty"`
}

// Entry is one audit record.
type Entry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Actor      string        `json:"actor"`
	Operation  OperationKind `json:"operation"`
	Details    Details       `json:"details"`
	EnvChanges []EnvChange   `json:"env_changes"`
	Result     Result        `json:"result"`
	Notes      string        `json:"notes,omitempty"`
}

// NewEntry returns an entry stamped with a fresh ID, the current time and the
// current OS user.
func NewEntry(op OperationKind, details Details, result Result) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Actor:      currentActor(),
		Operation:  op,
		Details:    details,
		EnvChanges: []EnvChange{},
		Result:     result,
	}
}

// AddEnvChange appends a change, masking secret values.
func (e *Entry) AddEnvChange(name string, oldValue, newValue *string) {
	e.EnvChanges = append(e.EnvChanges, EnvChange{
		VarName:  name,
		OldValue: maskPtr(name, oldValue),
		NewValue: maskPtr(name, newValue),
	})
}

// WithNotes sets the free-form notes and returns e.
func (e *Entry) WithNotes(notes string) *Entry {
	e.Notes = notes
	return e
}

// DiffEnv returns the changes between two environments ordered by name.
// Unchanged variables are omitted. Values are returned raw; AddEnvChange and
// Record mask them.
func DiffEnv(before, after map[string]string) []EnvChange {
	names := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		names[k] = struct{}{}
	}
	for k := range after {
		names[k] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []EnvChange
	for _, name := range sorted {
		oldV, hadOld := before[name]
		newV, hasNew := after[name]
		if hadOld && hasNew && oldV == newV {
			continue
		}
		c := EnvChange{VarName: name}
		if hadOld {
			c.OldValue = &oldV
		}
		if hasNew {
			c.NewValue = &newV
		}
		out = append(out, c)
	}
	return out
}

func (e *Entry) masked() Entry {
	out := *e
	out.EnvChanges = make([]EnvChange, len(e.EnvChanges))
	for i, c := range e.EnvChanges {
		out.EnvChanges[i] = EnvChange{
			VarName:  c.VarName,
			OldValue: maskPtr(c.VarName, c.OldValue),
			NewValue: maskPtr(c.VarName, c.NewValue),
		}
	}
	return out
}

func currentActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, k := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "unknown"
}
