package memory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// rowKeyIndexer indexes rows by their surrogate key. memdb requires every
// object to produce an "id" index value; the surrogate keeps that true even
// for records created without an identifier.
type rowKeyIndexer struct{}

func (rowKeyIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	row, ok := obj.(driven.Row)
	if !ok {
		return false, nil, fmt.Errorf("expected a row, got %T", obj)
	}
	key, ok := row[pkKey].(string)
	if !ok || key == "" {
		return false, nil, nil
	}
	// memdb convention: NUL-terminate string index values.
	return true, append([]byte(key), 0), nil
}

func (rowKeyIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one argument, got %d", len(args))
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("expected a string argument, got %T", args[0])
	}
	return append([]byte(key), 0), nil
}

func newSurrogateKey() string { return uuid.NewString() }
