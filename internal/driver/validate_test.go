package driver

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Valid identifiers
		{"upper_case", "BEHAELTER", false},
		{"mixed_case", "Kontrolle", false},
		{"with_underscore", "user_accounts", false},
		{"starts_underscore", "_private", false},
		{"with_numbers", "table123", false},
		{"max_length", strings.Repeat("a", 128), false},

		// Invalid identifiers
		{"empty", "", true},
		{"starts_number", "123table", true},
		{"has_space", "user accounts", true},
		{"has_dash", "user-accounts", true},
		{"has_dot", "schema.table", true},
		{"has_semicolon", "users;DROP", true},
		{"has_brackets", "users]", true},
		{"sql_injection_attempt", "users]; DROP TABLE users--", true},
		{"just_over_max", strings.Repeat("a", 129), true},
		{"union_select", "users UNION SELECT", true},
		{"null_byte", "users\x00DROP", true},
		{"newline", "users\nDROP", true},
		{"single_quote", "users'DROP", true},
		{"at_sign", "users@host", true},
		{"umlaut", "Behälter", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateIdentifier(%q) should return error", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateIdentifier(%q) unexpected error: %v", tt.input, err)
			}
		})
	}
}

func TestValidateSchemaTable(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		table   string
		wantErr bool
	}{
		{"valid", "dbo", "Kontrolle", false},
		{"invalid_schema", "dbo;DROP", "users", true},
		{"invalid_table", "dbo", "users;DROP", true},
		{"empty_schema", "", "users", true},
		{"empty_table", "dbo", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaTable(tt.schema, tt.table)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateSchemaTable(%q, %q) should return error", tt.schema, tt.table)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSchemaTable(%q, %q) unexpected error: %v", tt.schema, tt.table, err)
			}
		})
	}
}

func TestSplitTableName(t *testing.T) {
	tests := []struct {
		input      string
		wantSchema string
		wantTable  string
		wantErr    bool
	}{
		{"BEHAELTER", "", "BEHAELTER", false},
		{"dbo.Kontrolle", "dbo", "Kontrolle", false},
		{"world.city", "world", "city", false},
		{"", "", "", true},
		{".city", "", "", true},
		{"world.", "", "", true},
		{"a.b.c", "", "", true},
		{"city; DROP TABLE x", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			schema, table, err := SplitTableName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("SplitTableName(%q) should return error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitTableName(%q) unexpected error: %v", tt.input, err)
			}
			if schema != tt.wantSchema || table != tt.wantTable {
				t.Errorf("SplitTableName(%q) = (%q, %q), want (%q, %q)", tt.input, schema, table, tt.wantSchema, tt.wantTable)
			}
		})
	}
}
