package database

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func TestCreateTableInputDeclaresEveryKeyAttribute(t *testing.T) {
	for _, spec := range Schema {
		input := createTableInput(spec)

		declared := make(map[string]bool)
		for _, def := range input.AttributeDefinitions {
			declared[aws.ToString(def.AttributeName)] = true
		}

		if !declared[spec.HashKey] {
			t.Fatalf("%s: hash key %s not declared", spec.Name, spec.HashKey)
		}
		for _, idx := range spec.Indexes {
			if !declared[idx.HashKey] {
				t.Fatalf("%s/%s: index hash key %s not declared", spec.Name, idx.Name, idx.HashKey)
			}
			if idx.SortKey != "" && !declared[idx.SortKey] {
				t.Fatalf("%s/%s: index sort key %s not declared", spec.Name, idx.Name, idx.SortKey)
			}
		}
		if len(input.GlobalSecondaryIndexes) != len(spec.Indexes) {
			t.Fatalf("%s: expected %d indexes, got %d", spec.Name, len(spec.Indexes), len(input.GlobalSecondaryIndexes))
		}
	}
}

func TestIsIndexNotFound(t *testing.T) {
	cases := map[string]bool{
		"ValidationException: The table does not have the specified index: byUser": true,
		"index byUser not found":                true,
		"ResourceNotFoundException: table gone": false,
	}
	for msg, want := range cases {
		if got := IsIndexNotFound(errString(msg)); got != want {
			t.Fatalf("IsIndexNotFound(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
