package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "statekeep.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "statekeep.yaml" {
			t.Errorf("expected context file=statekeep.yaml, got %v", file)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Format includes cause", func(t *testing.T) {
		err := WriteError("rename failed").WithCause(errors.New("disk full")).Build()
		want := "[write:error] rename failed: disk full"
		if err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		err := LockTimeoutError("lock acquisition timed out").
			WithCause(context.DeadlineExceeded).
			WithContext("resource", "settings").
			WithContext("waited_ms", 150).
			Build()

		if err.Category() != CategoryLockTimeout {
			t.Errorf("expected category %s, got %s", CategoryLockTimeout, err.Category())
		}
		if err.RetryStrategy() != RetryBackoff {
			t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("expected error to wrap context.DeadlineExceeded")
		}

		resource, _ := err.Context().GetString("resource")
		if resource != "settings" {
			t.Errorf("expected resource context 'settings', got %s", resource)
		}
		if waited, ok := err.Context().Get("waited_ms"); !ok || waited != 150 {
			t.Errorf("expected waited_ms context 150, got %v", waited)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
			retry    RetryStrategy
		}{
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryNever},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityError, RetryUserAction},
			{"LockTimeoutError", LockTimeoutError("test"), CategoryLockTimeout, SeverityError, RetryBackoff},
			{"LockIOError", LockIOError("test"), CategoryLockIO, SeverityError, RetryNever},
			{"WriteError", WriteError("test"), CategoryWrite, SeverityError, RetryBackoff},
			{"ManifestError", ManifestError("test"), CategoryManifest, SeverityError, RetryNever},
			{"HistoryError", HistoryError("test"), CategoryHistory, SeverityError, RetryNever},
			{"NotifyError", NotifyError("test"), CategoryNotify, SeverityWarning, RetryBackoff},
			{"DaemonError", DaemonError("test"), CategoryDaemon, SeverityFatal, RetryNever},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
				if err.RetryStrategy() != tt.retry {
					t.Errorf("expected retry %s, got %s", tt.retry, err.RetryStrategy())
				}
			})
		}
	})
}

func TestChainHelpers(t *testing.T) {
	inner := LockIOError("cannot open lock file").WithContext("resource", "history").Build()
	outer := HistoryError("record failed").WithCause(inner).Build()
	wrapped := fmt.Errorf("commit: %w", outer)

	if !HasCategory(wrapped, CategoryHistory) {
		t.Error("expected history category through fmt wrap")
	}
	if !HasCategory(wrapped, CategoryLockIO) {
		t.Error("expected lock_io category deeper in the chain")
	}
	if HasCategory(wrapped, CategoryWrite) {
		t.Error("did not expect write category")
	}
	if got := GetCategory(wrapped); got != CategoryHistory {
		t.Errorf("expected outermost category history, got %s", got)
	}
	if got := GetCategory(errors.New("plain")); got != CategoryInternal {
		t.Errorf("expected internal for plain error, got %s", got)
	}
	if got := GetRetryStrategy(errors.New("plain")); got != RetryNever {
		t.Errorf("expected never for plain error, got %s", got)
	}
	if HasCategory(nil, CategoryInternal) {
		t.Error("nil error has no category")
	}
}

func TestWithContextDoesNotMutate(t *testing.T) {
	base := WriteError("write failed").WithContext("path", "/a").Build()
	derived := base.WithContext("path", "/b")

	if p, _ := base.Context().GetString("path"); p != "/a" {
		t.Errorf("base context mutated: %s", p)
	}
	if p, _ := derived.Context().GetString("path"); p != "/b" {
		t.Errorf("derived context not updated: %s", p)
	}
	if !errors.Is(derived, base) {
		t.Error("expected derived error to match base by category and message")
	}
}

func TestErrorContext(t *testing.T) {
	var ctx ErrorContext
	ctx = ctx.Set("key1", "value1")
	ctx = ctx.Set("key2", 42)

	if val, exists := ctx.GetString("key1"); !exists || val != "value1" {
		t.Errorf("expected key1=value1, got %v (exists: %v)", val, exists)
	}
	if _, exists := ctx.GetString("key2"); exists {
		t.Error("expected GetString to reject non-string value")
	}

	merged := ctx.Merge(ErrorContext{"key2": 43, "key3": true})
	if v, _ := merged.Get("key2"); v != 43 {
		t.Errorf("expected merged key2=43, got %v", v)
	}
	if v, _ := ctx.Get("key2"); v != 42 {
		t.Errorf("expected original key2=42, got %v", v)
	}
}
