package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/glue"
)

// fakeGlue simulates a single-database catalog.
type fakeGlue struct {
	tables  map[string]*glue.TableInput
	created []string
	deleted []string
}

func newFakeGlue() *fakeGlue {
	return &fakeGlue{tables: map[string]*glue.TableInput{}}
}

func notFound() error {
	return awserr.New(glue.ErrCodeEntityNotFoundException, "table not found", nil)
}

func (f *fakeGlue) GetTableWithContext(_ aws.Context, input *glue.GetTableInput, _ ...request.Option) (*glue.GetTableOutput, error) {
	if _, ok := f.tables[*input.Name]; !ok {
		return nil, notFound()
	}
	return &glue.GetTableOutput{}, nil
}

func (f *fakeGlue) CreateTableWithContext(_ aws.Context, input *glue.CreateTableInput, _ ...request.Option) (*glue.CreateTableOutput, error) {
	f.tables[*input.TableInput.Name] = input.TableInput
	f.created = append(f.created, *input.TableInput.Name)
	return &glue.CreateTableOutput{}, nil
}

func (f *fakeGlue) DeleteTableWithContext(_ aws.Context, input *glue.DeleteTableInput, _ ...request.Option) (*glue.DeleteTableOutput, error) {
	if _, ok := f.tables[*input.Name]; !ok {
		return nil, notFound()
	}
	delete(f.tables, *input.Name)
	f.deleted = append(f.deleted, *input.Name)
	return &glue.DeleteTableOutput{}, nil
}

func testSpec() TableSpec {
	return TableSpec{
		Database:  "lake",
		Table:     "events",
		Location:  "s3://bucket/events/",
		Columns:   []Column{{Name: "id", Type: "bigint"}, {Name: "name", Type: "string"}},
		Separator: ',',
	}
}

func TestRegisterOverwrite(t *testing.T) {
	api := newFakeGlue()
	c := NewClient(api, nil)

	if err := c.Register(context.Background(), testSpec(), "overwrite"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register(context.Background(), testSpec(), "overwrite"); err != nil {
		t.Fatalf("Register() second overwrite error = %v", err)
	}
	if len(api.created) != 2 || len(api.deleted) != 1 {
		t.Errorf("created = %d, deleted = %d, want 2 and 1", len(api.created), len(api.deleted))
	}
}

func TestRegisterAppendKeepsExisting(t *testing.T) {
	api := newFakeGlue()
	c := NewClient(api, nil)

	if err := c.Register(context.Background(), testSpec(), "append"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register(context.Background(), testSpec(), "append"); err != nil {
		t.Fatalf("Register() second append error = %v", err)
	}
	if len(api.created) != 1 {
		t.Errorf("created = %d, want 1 (append must not recreate)", len(api.created))
	}
}

func TestRegisterInvalidMode(t *testing.T) {
	c := NewClient(newFakeGlue(), nil)
	if err := c.Register(context.Background(), testSpec(), "merge"); !errors.Is(err, ErrTableModeInvalid) {
		t.Errorf("Register() error = %v, want ErrTableModeInvalid", err)
	}
}

func TestTableExists(t *testing.T) {
	api := newFakeGlue()
	c := NewClient(api, nil)

	exists, err := c.TableExists(context.Background(), "lake", "events")
	if err != nil || exists {
		t.Errorf("TableExists() = (%v, %v), want (false, nil)", exists, err)
	}

	if err := c.Register(context.Background(), testSpec(), "overwrite"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	exists, err = c.TableExists(context.Background(), "lake", "events")
	if err != nil || !exists {
		t.Errorf("TableExists() = (%v, %v), want (true, nil)", exists, err)
	}
}

func TestCSVTableInput(t *testing.T) {
	t.Run("unquoted keeps numeric types", func(t *testing.T) {
		input := CSVTableInput(testSpec())
		sd := input.StorageDescriptor
		if got := *sd.SerdeInfo.SerializationLibrary; got != "org.apache.hadoop.hive.serde2.lazy.LazySimpleSerDe" {
			t.Errorf("serde = %s", got)
		}
		if got := *sd.SerdeInfo.Parameters["field.delim"]; got != "," {
			t.Errorf("field.delim = %q", got)
		}
		if got := *sd.Columns[0].Type; got != "bigint" {
			t.Errorf("id column type = %s, want bigint", got)
		}
		if got := *input.Parameters["areColumnsQuoted"]; got != "false" {
			t.Errorf("areColumnsQuoted = %s", got)
		}
	})

	t.Run("quoted forces string columns", func(t *testing.T) {
		spec := testSpec()
		spec.QuoteAll = true
		input := CSVTableInput(spec)
		sd := input.StorageDescriptor
		if got := *sd.SerdeInfo.SerializationLibrary; got != "org.apache.hadoop.hive.serde2.OpenCSVSerde" {
			t.Errorf("serde = %s", got)
		}
		if got := *sd.SerdeInfo.Parameters["separatorChar"]; got != "," {
			t.Errorf("separatorChar = %q", got)
		}
		for _, col := range sd.Columns {
			if *col.Type != "string" {
				t.Errorf("column %s type = %s, want string", *col.Name, *col.Type)
			}
		}
		if got := *input.Parameters["areColumnsQuoted"]; got != "true" {
			t.Errorf("areColumnsQuoted = %s", got)
		}
	})
}

func TestTypeSQLToAthena(t *testing.T) {
	tests := []struct {
		sqlType string
		want    string
	}{
		{"INT4", "int"},
		{"INT8", "bigint"},
		{"FLOAT8", "double"},
		{"NUMERIC", "double"},
		{"BOOL", "boolean"},
		{"TEXT", "string"},
		{"UUID", "string"},
		{"TIMESTAMPTZ", "timestamp"},
		{"DATE", "date"},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			got, err := TypeSQLToAthena(tt.sqlType)
			if err != nil {
				t.Fatalf("TypeSQLToAthena() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TypeSQLToAthena(%s) = %s, want %s", tt.sqlType, got, tt.want)
			}
		})
	}

	if _, err := TypeSQLToAthena("CIRCLE"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("TypeSQLToAthena(CIRCLE) error = %v, want ErrUnsupportedType", err)
	}
}

func TestTypeToKind(t *testing.T) {
	tests := []struct {
		athenaType string
		want       Kind
	}{
		{"int", KindInt},
		{"bigint", KindBigInt},
		{"double", KindFloat},
		{"decimal(10,2)", KindFloat},
		{"varchar(255)", KindString},
		{"array<string>", KindString},
		{"boolean", KindBool},
		{"timestamp", KindTimestamp},
		{"date", KindDate},
	}
	for _, tt := range tests {
		t.Run(tt.athenaType, func(t *testing.T) {
			got, err := TypeToKind(tt.athenaType)
			if err != nil {
				t.Fatalf("TypeToKind() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TypeToKind(%s) = %v, want %v", tt.athenaType, got, tt.want)
			}
		})
	}

	if _, err := TypeToKind("geometry"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("TypeToKind(geometry) error = %v, want ErrUnsupportedType", err)
	}
}
