package xlsxexport

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"graphql-admin/internal/listview"
)

func number(f float64) *float64 { return &f }

func flag(b bool) *bool { return &b }

func TestWrite(t *testing.T) {
	aired := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	snap := listview.Snapshot{
		Title: "Episodes",
		Columns: []listview.Column{
			{Name: "id", Label: "ID"},
			{Name: "name", Label: "Name"},
			{Name: "rating", Label: "Rating"},
			{Name: "watched", Label: "Watched"},
			{Name: "date", Label: "Aired"},
			{Name: "season.number", Label: "Season"},
		},
		Rows: []listview.Row{
			{
				{Column: "id", Value: listview.Value{Kind: listview.KindString, Text: "7"}, Display: "7"},
				{Column: "name", Value: listview.Value{Kind: listview.KindString, Text: "Pilot"}, Display: "Pilot"},
				{Column: "rating", Value: listview.Value{Kind: listview.KindNumber, Text: "8.5", Number: number(8.5)}, Display: "8.5"},
				{Column: "watched", Value: listview.Value{Kind: listview.KindBoolean, Text: "true", Bool: flag(true)}, Display: "true"},
				{Column: "date", Value: listview.Value{Kind: listview.KindDate, Text: "2020-01-05", Time: &aired}, Display: "2020-01-05"},
				{Column: "season.number", Value: listview.Value{Kind: listview.KindNumber, Text: "1", Number: number(1)}, Display: "S01"},
			},
			{
				{Column: "id", Value: listview.Value{Kind: listview.KindString, Text: "8"}, Display: "8"},
				{Column: "name", Value: listview.Value{Kind: listview.KindNull}},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Episodes"}, f.GetSheetList())

	rows, err := f.GetRows("Episodes")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Name", "Rating", "Watched", "Aired", "Season"}, rows[0])
	assert.Equal(t, "Pilot", rows[1][1])
	assert.Equal(t, "S01", rows[1][5])
	assert.Equal(t, []string{"8"}, rows[2])

	rating, err := f.GetCellValue("Episodes", "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "8.5", rating)

	cellType, err := f.GetCellType("Episodes", "D2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeBool, cellType)
}

func TestWrite_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, listview.Snapshot{}))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sheet1"}, f.GetSheetList())
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet1", SheetName(""))
	assert.Equal(t, "Sheet1", SheetName(" / "))
	assert.Equal(t, "TV  series", SheetName("TV: series"))
	assert.Equal(t, "Episodes", SheetName("'Episodes'"))
	assert.Len(t, []rune(SheetName("An extremely long title that exceeds the sheet limit")), 31)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "episodes.xlsx", FileName("episodes"))
	assert.Equal(t, "tv_series.xlsx", FileName("tv_series"))
	assert.Equal(t, "export.xlsx", FileName("../"))
}
