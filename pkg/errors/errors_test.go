package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true},
		{code: CodeReservationConflict, status: http.StatusConflict, retryable: true},
		{code: CodeBidTooLow, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeSelfBid, status: http.StatusForbidden},
		{code: CodeAuctionEnded, status: http.StatusConflict},
		{code: CodePickupSlotInvalid, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s missing public message", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := Newf(CodeInsufficientStock, "item %s has %d available", "abc", 2)
	if base.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code, got %s", base.Code())
	}
	if base.Message() != "item abc has 2 available" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"available": 2})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "save offer")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !IsCode(fmt.Errorf("outer: %w", wrapped), CodeDependency) {
		t.Fatalf("IsCode should see through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeReservationConflict, "busy")) {
		t.Fatalf("reservation conflict must be retryable")
	}
	if IsRetryable(New(CodeInsufficientStock, "none left")) {
		t.Fatalf("insufficient stock must not be retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors are not retryable")
	}
}

func TestDumpCapturesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_offers_id", TableName: "offers", Message: "duplicate key"}
	err := Wrap(CodeDependency, pgErr, "insert offer")

	dump := Dump(err)
	if dump.Code != CodeDependency || !dump.Retryable {
		t.Fatalf("unexpected dump code: %+v", dump)
	}
	if dump.PG == nil || dump.PG.Code != "23505" || dump.PG.Constraint != "ux_offers_id" {
		t.Fatalf("expected pg fields, got %+v", dump)
	}
	if dump.PG.Class != "integrity_constraint_violation" {
		t.Fatalf("unexpected class %q", dump.PG.Class)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
	fields := dump.Fields()
	if fields["pg_table"] != "offers" {
		t.Fatalf("expected pg_table field, got %v", fields["pg_table"])
	}
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	dump := Dump(Wrap(CodeReservationConflict, &pq.Error{Code: "40001", Table: "items"}, "commit"))
	if dump.PG == nil || dump.PG.Class != "transaction_rollback" || dump.PG.Table != "items" {
		t.Fatalf("unexpected pg fields %+v", dump.PG)
	}
	if plain := Dump(stdErrors.New("plain")); plain.PG != nil {
		t.Fatalf("plain errors carry no pg fields")
	}
	if _, ok := Dump(stdErrors.New("plain")).Fields()["pg_code"]; ok {
		t.Fatal("pg fields must be omitted")
	}
}
