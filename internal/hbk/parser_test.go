package hbk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/hbk/hbktest"
)

func collect(t *testing.T, scan *hbk.Scan) []*hbk.Entry {
	t.Helper()
	var entries []*hbk.Entry
	for {
		e, ok := scan.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return entries
}

func byName(entries []*hbk.Entry, name string) *hbk.Entry {
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func TestParse_FullArchive(t *testing.T) {
	data := hbktest.Archive(
		hbktest.GlobalFunction("СтрДлина", "StrLen", "Получает длину строки."),
		hbktest.ObjectType("ТаблицаЗначений", "ValueTable", "Таблица значений."),
		hbktest.Method("ТаблицаЗначений", "ValueTable", "Добавить", "Add", "Добавляет строку."),
		hbktest.Property("ТаблицаЗначений", "ValueTable", "Колонки", "Columns", "Коллекция колонок."),
		hbktest.Event("ТаблицаЗначений", "ValueTable", "ПриИзменении", "OnChange", "При изменении."),
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	require.Len(t, entries, 5)
	assert.Equal(t, 0, scan.Skipped())

	// Object declarations are yielded before members.
	assert.Equal(t, hbk.KindObjectType, entries[0].Kind)

	obj := byName(entries, "ТаблицаЗначений")
	require.NotNil(t, obj)
	assert.Equal(t, hbk.KindObjectType, obj.Kind)
	assert.Equal(t, "", obj.Owner)
	assert.Equal(t, []string{"ValueTable"}, obj.Aliases)
	assert.Equal(t, "8.3.24", obj.Version)

	fn := byName(entries, "СтрДлина")
	require.NotNil(t, fn)
	assert.Equal(t, hbk.KindGlobalFunction, fn.Kind)
	assert.Equal(t, "", fn.Owner)
	assert.Equal(t, "СтрДлина(<Значение>)", fn.Signature)
	assert.Equal(t, "Число", fn.ReturnType)
	require.Len(t, fn.Parameters, 1)
	assert.Equal(t, "Значение", fn.Parameters[0].Name)
	assert.False(t, fn.Parameters[0].Optional)
	assert.Equal(t, "Строка", fn.Parameters[0].Type)

	method := byName(entries, "Добавить")
	require.NotNil(t, method)
	assert.Equal(t, hbk.KindMethod, method.Kind)
	assert.Equal(t, "ТаблицаЗначений", method.Owner)
	require.Len(t, method.Parameters, 1)
	assert.True(t, method.Parameters[0].Optional)

	prop := byName(entries, "Колонки")
	require.NotNil(t, prop)
	assert.Equal(t, hbk.KindProperty, prop.Kind)
	assert.Equal(t, "ТаблицаЗначений", prop.Owner)

	ev := byName(entries, "ПриИзменении")
	require.NotNil(t, ev)
	assert.Equal(t, hbk.KindEvent, ev.Kind)
}

func TestParse_UnrecognizedHeaderIsFatal(t *testing.T) {
	_, err := hbk.NewParser().Parse([]byte("this is not an archive at all"))

	require.Error(t, err)
	assert.Equal(t, helperrors.ErrCodeUnsupportedFormat, helperrors.GetCode(err))
	assert.True(t, helperrors.IsFatal(err))
}

func TestParse_GarbageAfterSignatureIsFatal(t *testing.T) {
	// A PK marker with no readable ZIP behind it.
	data := append([]byte("HEADER"), []byte("PK but nothing valid follows")...)

	_, err := hbk.NewParser().Parse(data)
	require.Error(t, err)
	assert.Equal(t, helperrors.ErrCodeUnsupportedFormat, helperrors.GetCode(err))
}

func TestParse_MalformedPageSkippedNotFatal(t *testing.T) {
	data := hbktest.Archive(
		hbktest.ObjectType("Массив", "Array", "Коллекция."),
		hbktest.Method("Массив", "Array", "Добавить", "Add", "Добавляет."),
		hbktest.Page{
			Path: "objects/catalog200/Array1/methods/Broken9.html",
			Raw:  "<html><body><p>no title here</p></body></html>",
		},
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, scan.Skipped())
}

func TestParse_UnresolvedOwnerDropped(t *testing.T) {
	data := hbktest.Archive(
		hbktest.ObjectType("Массив", "Array", "Коллекция."),
		hbktest.Page{
			Path:  "objects/catalog200/Ghost1/methods/Orphan2.html",
			Title: "НесуществующийОбъект.Метод (Ghost.Method)",
		},
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	require.Len(t, entries, 1)
	assert.Equal(t, "Массив", entries[0].Name)
	assert.Equal(t, 1, scan.Skipped())
}

func TestParse_OwnerResolvedByAlias(t *testing.T) {
	// The member page title qualifies the owner by its English alias;
	// resolution must still find the declared object.
	data := hbktest.Archive(
		hbktest.ObjectType("ТаблицаЗначений", "ValueTable", "Таблица."),
		hbktest.Page{
			Path:  "objects/catalog200/ValueTable1/methods/Clear5.html",
			Title: "ValueTable.Очистить (ValueTable.Clear)",
		},
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	require.Len(t, entries, 2)
	member := byName(entries, "Очистить")
	require.NotNil(t, member)
	assert.Equal(t, "ТаблицаЗначений", member.Owner)
}

func TestParse_DuplicateEntryDropped(t *testing.T) {
	dup := hbktest.Method("Массив", "Array", "Добавить", "Add", "Добавляет.")
	dup.Path = "objects/catalog200/Array1/methods/Add99.html"

	data := hbktest.Archive(
		hbktest.ObjectType("Массив", "Array", "Коллекция."),
		hbktest.Method("Массив", "Array", "Добавить", "Add", "Добавляет."),
		dup,
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, scan.Skipped())
}

func TestParse_NameCollisionAcrossKindsKept(t *testing.T) {
	// A global function and an object type may legitimately share a
	// name; both survive the pass.
	data := hbktest.Archive(
		hbktest.GlobalFunction("Найти", "Find", "Глобальный поиск."),
		hbktest.ObjectType("Найти", "Find", "Объект поиска."),
	)

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	require.Len(t, entries, 2)
	kinds := map[hbk.Kind]bool{}
	for _, e := range entries {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[hbk.KindGlobalFunction])
	assert.True(t, kinds[hbk.KindObjectType])
}

func TestParseFile_MissingArchive(t *testing.T) {
	_, err := hbk.NewParser().ParseFile(filepath.Join(t.TempDir(), "absent.hbk"))

	require.Error(t, err)
	assert.Equal(t, helperrors.ErrCodeArchiveNotFound, helperrors.GetCode(err))
	assert.True(t, helperrors.IsFatal(err))
}

func TestParseFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.hbk")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o644))

	_, err := hbk.NewParser(hbk.WithMaxSize(100)).ParseFile(path)
	require.Error(t, err)
	assert.Equal(t, helperrors.ErrCodeArchiveTooLarge, helperrors.GetCode(err))
}

func TestParseFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "help.hbk")
	data := hbktest.Archive(
		hbktest.ObjectType("Массив", "Array", "Коллекция."),
		hbktest.Method("Массив", "Array", "Количество", "Count", "Число элементов."),
	)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	scan, err := hbk.NewParser().ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, collect(t, scan), 2)
}

func TestParse_Windows1251Page(t *testing.T) {
	// Simulate an older-build page in windows-1251: "Мок (Mock)".
	cp1251Title := []byte{0xCC, 0xEE, 0xEA} // "Мок"
	raw := "<html><body><h1 class=\"V8SH_pagetitle\">" + string(cp1251Title) + " (Mock)</h1></body></html>"

	data := hbktest.Archive(hbktest.Page{
		Path: "objects/catalog200/Mock1.html",
		Raw:  raw,
	})

	scan, err := hbk.NewParser().Parse(data)
	require.NoError(t, err)

	entries := collect(t, scan)
	require.Len(t, entries, 1)
	assert.Equal(t, "Мок", entries[0].Name)
	assert.Equal(t, []string{"Mock"}, entries[0].Aliases)
}
