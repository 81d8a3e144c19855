package files

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/csvimport/internal/core"
)

func newTestStore(t *testing.T, enc string, maxSize int64) *Store {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir(), "/media")
	require.NoError(t, err)
	store, err := NewStore(storage, enc, maxSize)
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "utf-8", 1<<20)

	csvData := "sku,price\nA1,9.99\nA2,5\nA3,3\n"
	up, err := store.Save(ctx, "products.csv", strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, "products.csv", up.Name)
	assert.Equal(t, []string{"sku", "price"}, up.Headers)
	assert.Equal(t, 3, up.TotalRows)
	assert.Equal(t, int64(len(csvData)), up.Size)

	rows, err := store.Rows(ctx, up.Handle, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A2", "5"}}, rows)

	all, err := store.Rows(ctx, up.Handle, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	past, err := store.Rows(ctx, up.Handle, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestStore_StripsBOMAndAllowsShortRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "utf-8", 1<<20)

	up, err := store.Save(ctx, "bom.csv", strings.NewReader("\xEF\xBB\xBFsku,name\nA1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "name"}, up.Headers)

	rows, err := store.Rows(ctx, up.Handle, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A1"}}, rows)
}

func TestStore_DecodesLegacyEncoding(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "windows-1251", 1<<20)

	encoded, err := charmap.Windows1251.NewEncoder().String("name\nПривет\n")
	require.NoError(t, err)

	up, err := store.Save(ctx, "cyrillic.csv", strings.NewReader(encoded))
	require.NoError(t, err)

	rows, err := store.Rows(ctx, up.Handle, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Привет"}}, rows)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "utf-8", 16)

	_, err := store.Save(ctx, "big.csv", strings.NewReader(strings.Repeat("a,b\n", 20)))
	assert.True(t, errors.Is(err, ErrFileTooLarge), "got %v", err)

	_, err = store.Save(ctx, "empty.csv", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrEmptyFile), "got %v", err)

	_, err = store.Headers(ctx, "../etc/passwd")
	assert.True(t, errors.Is(err, core.ErrFileNotFound), "got %v", err)

	_, err = store.RowCount(ctx, "6f1c6d8e-93e4-4a8b-9b8e-0d8f4f7a2c11.csv")
	assert.True(t, errors.Is(err, core.ErrFileNotFound), "got %v", err)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "utf-8", 1<<20)

	up, err := store.Save(ctx, "x.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, up.Handle))

	_, err = store.Headers(ctx, up.Handle)
	assert.True(t, errors.Is(err, core.ErrFileNotFound), "got %v", err)
}

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "windows-1251", "windows-1252", "iso-8859-1"} {
		_, err := LookupEncoding(name)
		assert.NoError(t, err, name)
	}
	_, err := LookupEncoding("ebcdic")
	assert.Error(t, err)
}
