package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "contacts_email_key"}
	wrapped := fmt.Errorf("upsert contact: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("expected pg unique violation to match")
	}
	if !IsUniqueViolation(wrapped, "contacts_email_key") {
		t.Fatal("expected named constraint to match")
	}
	if IsUniqueViolation(wrapped, "licenses_license_id_key") {
		t.Fatal("did not expect a different constraint to match")
	}

	sqliteErr := errors.New("UNIQUE constraint failed: contacts.email")
	if !IsUniqueViolation(sqliteErr, "") {
		t.Fatal("expected sqlite unique violation to match")
	}

	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not match")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("unrelated error should not match")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgForeignKeyViolation}
	if !IsForeignKeyViolation(fmt.Errorf("insert license: %w", pgErr)) {
		t.Fatal("expected pg fk violation to match")
	}
	if !IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")) {
		t.Fatal("expected sqlite fk violation to match")
	}
	if IsForeignKeyViolation(errors.New("duplicate key value")) {
		t.Fatal("unique violation should not match fk check")
	}
	if IsForeignKeyViolation(nil) {
		t.Fatal("nil error should not match")
	}
}
