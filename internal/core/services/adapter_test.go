package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/authcore/internal/core/ports/driving"
)

func testRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.NewRegistry(
		domain.Model{
			Name: "user",
			Fields: []domain.Field{
				{Name: "id", Type: domain.FieldString},
				{Name: "name", Type: domain.FieldString},
				{Name: "email", Type: domain.FieldString, Unique: true},
				{Name: "emailVerified", Type: domain.FieldBoolean, Default: false},
				{Name: "metadata", Type: domain.FieldJSON},
				{Name: "createdAt", Type: domain.FieldDate},
			},
		},
		domain.Model{
			Name: "session",
			Fields: []domain.Field{
				{Name: "id", Type: domain.FieldString},
				{Name: "userId", Type: domain.FieldReference, References: "user"},
				{Name: "token", Type: domain.FieldString, Unique: true},
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func newTestAdapter(t *testing.T, driver driven.Driver, cfg Config) *Adapter {
	t.Helper()
	a, err := New(context.Background(), testRegistry(t), driver, cfg)
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	_, err := New(ctx, nil, mocks.NewMockDriver(), Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(ctx, reg, nil, Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_InitializesSchema(t *testing.T) {
	driver := mocks.NewMockDriver()
	newTestAdapter(t, driver, Config{})

	require.Len(t, driver.Tables, 2)
	assert.Equal(t, "user", driver.Tables[0].Name)
	assert.Equal(t, "id", driver.Tables[0].IDColumn)
	assert.Len(t, driver.Tables[0].Columns, 6)
}

func TestCreate_GeneratesID(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Create(context.Background(), "user", driving.Record{"name": "Ada"})
	require.NoError(t, err)

	id, ok := record["id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, driver.InsertedRow["id"])
}

func TestCreate_SuppliedIDWins(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Create(context.Background(), "user", driving.Record{"id": "user-1", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", record["id"])
}

func TestCreate_IDGenerationDisabled(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{DisableIDGeneration: true})

	_, err := a.Create(context.Background(), "user", driving.Record{"name": "Ada"})
	require.NoError(t, err)
	_, present := driver.InsertedRow["id"]
	assert.False(t, present, "no identifier should reach the backend")
}

func TestCreate_CustomIDGenerator(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{
		GenerateID: func(model string) string { return "fixed-" + model },
	})

	record, err := a.Create(context.Background(), "user", driving.Record{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-user", record["id"])
}

func TestCreate_FullLogicalShape(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Create(context.Background(), "user", driving.Record{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	// Every model field appears, absent ones filled with their default.
	assert.Len(t, record, 6)
	assert.Equal(t, false, record["emailVerified"])
	assert.Nil(t, record["metadata"])
}

func TestCreate_ComputedTimestampDefaults(t *testing.T) {
	reg, err := domain.NewRegistry(domain.Model{
		Name: "user",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldString},
			{Name: "name", Type: domain.FieldString},
			{Name: "email", Type: domain.FieldString},
			{Name: "createdAt", Type: domain.FieldDate, DefaultFunc: func() any { return time.Now() }},
			{Name: "updatedAt", Type: domain.FieldDate, DefaultFunc: func() any { return time.Now() }},
		},
	})
	require.NoError(t, err)

	a, err := New(context.Background(), reg, mocks.NewMockDriver(), Config{})
	require.NoError(t, err)

	record, err := a.Create(context.Background(), "user", driving.Record{"name": "a"})
	require.NoError(t, err)

	assert.Len(t, record, 5)
	assert.Nil(t, record["email"])
	_, ok := record["createdAt"].(time.Time)
	assert.True(t, ok, "createdAt should be a timestamp, got %T", record["createdAt"])
	_, ok = record["updatedAt"].(time.Time)
	assert.True(t, ok, "updatedAt should be a timestamp, got %T", record["updatedAt"])
}

func TestCreate_SelectProjection(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "email": "ada@example.com"}, "id", "email")
	require.NoError(t, err)

	assert.Len(t, record, 2)
	assert.Contains(t, record, "id")
	assert.Contains(t, record, "email")
}

func TestCreate_UnknownField(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	_, err := a.Create(context.Background(), "user", driving.Record{"nope": 1})
	assert.ErrorIs(t, err, domain.ErrUnknownField)
}

func TestCreate_UnknownModel(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	_, err := a.Create(context.Background(), "widget", driving.Record{})
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestBooleanCompensation(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.Booleans = false
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "emailVerified": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), driver.InsertedRow["emailVerified"])
	assert.Equal(t, true, record["emailVerified"])

	record, err = a.Create(context.Background(), "user",
		driving.Record{"name": "Grace", "emailVerified": false})
	require.NoError(t, err)
	assert.Equal(t, int64(0), driver.InsertedRow["emailVerified"])
	assert.Equal(t, false, record["emailVerified"])
}

func TestDateCompensation(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.Dates = false
	a := newTestAdapter(t, driver, Config{})

	at := time.Date(2026, 8, 31, 12, 30, 0, 123456789, time.UTC)
	record, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "createdAt": at})
	require.NoError(t, err)

	assert.Equal(t, at.Format(time.RFC3339Nano), driver.InsertedRow["createdAt"])
	got, ok := record["createdAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestJSONCompensation(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.JSON = false
	a := newTestAdapter(t, driver, Config{})

	meta := map[string]any{"plan": "pro", "seats": float64(3)}
	record, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "metadata": meta})
	require.NoError(t, err)

	serialized, ok := driver.InsertedRow["metadata"].(string)
	require.True(t, ok)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(serialized), &stored))
	assert.Equal(t, meta, stored)
	assert.Equal(t, meta, record["metadata"])
}

func TestTransformHooks_ShortCircuit(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.Booleans = false
	a := newTestAdapter(t, driver, Config{
		TransformInput: func(tc TransformContext) (any, bool) {
			if tc.Field == "emailVerified" {
				return "yes", true
			}
			return nil, false
		},
	})

	_, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "emailVerified": true})
	require.NoError(t, err)
	// Handled values skip the built-in boolean coercion entirely.
	assert.Equal(t, "yes", driver.InsertedRow["emailVerified"])
}

func TestMapKeysInput(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{
		MapKeysInput: map[string]string{"email": "email_address"},
	})

	record, err := a.Create(context.Background(), "user",
		driving.Record{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", driver.InsertedRow["email_address"])
	_, present := driver.InsertedRow["email"]
	assert.False(t, present)
	// Reads translate back to the logical key.
	assert.Equal(t, "ada@example.com", record["email"])
}

func TestMapKeysInput_FiltersAndSorts(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user",
		driven.Row{"id": "1", "name": "Ada", "email_address": "ada@example.com"},
		driven.Row{"id": "2", "name": "Grace", "email_address": "grace@example.com"},
	)
	a := newTestAdapter(t, driver, Config{
		MapKeysInput: map[string]string{"email": "email_address"},
	})

	records, err := a.FindMany(context.Background(), "user",
		domain.Where{domain.Eq("email", "ada@example.com")},
		&driving.FindOptions{SortBy: []domain.SortField{{Field: "email"}}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0]["id"])

	// Filters and sorts travel under the remapped key, like writes.
	require.Len(t, driver.LastQuery.Where.And, 1)
	assert.Equal(t, "email_address", driver.LastQuery.Where.And[0].Field)
	require.Len(t, driver.LastQuery.OrderBy, 1)
	assert.Equal(t, "email_address", driver.LastQuery.OrderBy[0].Field)
}

func TestMapKeysOutput(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user", driven.Row{"_key": "user-1", "name": "Ada"})
	a := newTestAdapter(t, driver, Config{
		MapKeysOutput: map[string]string{"_key": "id"},
	})

	record, err := a.FindOne(context.Background(), "user", domain.Where{domain.Eq("name", "Ada")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-1", record["id"])
}

func TestFindOne_NotFound(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	_, err := a.FindOne(context.Background(), "user", domain.Where{domain.Eq("id", "missing")}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindMany_WhereAndOrGroups(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user",
		driven.Row{"id": "1", "name": "Ada", "email": "ada@example.com"},
		driven.Row{"id": "2", "name": "Ada", "email": "other@example.com"},
		driven.Row{"id": "3", "name": "Grace", "email": "grace@example.com"},
	)
	a := newTestAdapter(t, driver, Config{})

	records, err := a.FindMany(context.Background(), "user", domain.Where{
		domain.Eq("name", "Ada"),
		domain.Or(domain.Eq("email", "ada@example.com")),
		domain.Or(domain.Eq("email", "grace@example.com")),
	}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0]["id"])
}

func TestFindMany_InWrapsScalar(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user", driven.Row{"id": "1", "name": "Ada"})
	a := newTestAdapter(t, driver, Config{})

	records, err := a.FindMany(context.Background(), "user",
		domain.Where{domain.In("id", "1")}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The driver received a set, not a scalar.
	cond := driver.LastQuery.Where.And[0]
	assert.Equal(t, []any{"1"}, cond.Value)
}

func TestCompileWhere_UnknownOperatorPassesThrough(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})
	m, err := a.reg.Model("user")
	require.NoError(t, err)

	p, err := a.compileWhere(m, domain.Where{
		{Field: "name", Op: domain.Operator("regexp"), Value: "^A"},
	})
	require.NoError(t, err)
	require.Len(t, p.And, 1)
	assert.Equal(t, domain.Operator("regexp"), p.And[0].Op)
	assert.Equal(t, "^A", p.And[0].Value)
}

func TestFindMany_DefaultLimit(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	_, err := a.FindMany(context.Background(), "user", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultFindLimit, driver.LastQuery.Limit)
}

func TestFindMany_OffsetWithoutSortOrdersByID(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{})

	_, err := a.FindMany(context.Background(), "user", nil, &driving.FindOptions{Offset: 5})
	require.NoError(t, err)
	require.Len(t, driver.LastQuery.OrderBy, 1)
	assert.Equal(t, "id", driver.LastQuery.OrderBy[0].Field)
}

func TestFindMany_SortAndPaging(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user",
		driven.Row{"id": "1", "name": "Carol"},
		driven.Row{"id": "2", "name": "Ada"},
		driven.Row{"id": "3", "name": "Bob"},
	)
	a := newTestAdapter(t, driver, Config{})

	records, err := a.FindMany(context.Background(), "user", nil, &driving.FindOptions{
		SortBy: []domain.SortField{{Field: "name"}},
		Limit:  2,
		Offset: 1,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Bob", records[0]["name"])
	assert.Equal(t, "Carol", records[1]["name"])
}

func TestUpdate_NotFound(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	_, err := a.Update(context.Background(), "user",
		domain.Where{domain.Eq("id", "missing")}, driving.Record{"name": "Ada"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_TransformsPayload(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.Booleans = false
	driver.Seed("user", driven.Row{"id": "1", "name": "Ada", "emailVerified": int64(0)})
	a := newTestAdapter(t, driver, Config{})

	record, err := a.Update(context.Background(), "user",
		domain.Where{domain.Eq("id", "1")}, driving.Record{"emailVerified": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), driver.UpdatedRow["emailVerified"])
	assert.Equal(t, true, record["emailVerified"])
}

func TestUpdateMany_ZeroMatches(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	n, err := a.UpdateMany(context.Background(), "user",
		domain.Where{domain.Eq("name", "nobody")}, driving.Record{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	a := newTestAdapter(t, mocks.NewMockDriver(), Config{})

	err := a.Delete(context.Background(), "user", domain.Where{domain.Eq("id", "missing")})
	assert.NoError(t, err)
}

func TestDeleteMany_ReturnsCount(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user",
		driven.Row{"id": "1", "name": "Ada"},
		driven.Row{"id": "2", "name": "Ada"},
		driven.Row{"id": "3", "name": "Grace"},
	)
	a := newTestAdapter(t, driver, Config{})

	n, err := a.DeleteMany(context.Background(), "user", domain.Where{domain.Eq("name", "Ada")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCount(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Seed("user",
		driven.Row{"id": "1", "name": "Ada"},
		driven.Row{"id": "2", "name": "Grace"},
	)
	a := newTestAdapter(t, driver, Config{})

	n, err := a.Count(context.Background(), "user", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTransaction_UsesRunner(t *testing.T) {
	driver := mocks.NewMockTxDriver()
	a := newTestAdapter(t, driver, Config{})

	err := a.Transaction(context.Background(), func(tx driving.Adapter) error {
		_, err := tx.Create(context.Background(), "user", driving.Record{"name": "Ada"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, driver.TxCalls)
	assert.Len(t, driver.Rows("user"), 1)
}

func TestTransaction_SequentialFallback(t *testing.T) {
	driver := mocks.NewMockDriver()
	driver.Caps.Transactions = false
	a := newTestAdapter(t, driver, Config{})

	err := a.Transaction(context.Background(), func(tx driving.Adapter) error {
		_, err := tx.Create(context.Background(), "user", driving.Record{"name": "Ada"})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, driver.Rows("user"), 1)
}

func TestTransaction_PropagatesError(t *testing.T) {
	driver := mocks.NewMockTxDriver()
	a := newTestAdapter(t, driver, Config{})

	boom := errors.New("boom")
	err := a.Transaction(context.Background(), func(driving.Adapter) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestUsePlural(t *testing.T) {
	driver := mocks.NewMockDriver()
	a := newTestAdapter(t, driver, Config{UsePlural: true})

	_, err := a.Create(context.Background(), "user", driving.Record{"name": "Ada"})
	require.NoError(t, err)
	assert.Len(t, driver.Rows("users"), 1)
}
