package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderErrorCSV(t *testing.T) {
	data := []byte(sampleHeader +
		"1;;;80014930329;;;;;15000;01234567890;Rossi;;;\n" +
		"2;;;80014930329;;;;;0;01234567890;Bianchi;;;\n")
	rowErrs := []RowError{
		{RowNumber: 2, Errors: []string{"amount must be greater than zero"}},
	}

	out, err := RenderErrorCSV(data, rowErrs, 2)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, errorCSVHeader, lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ";"), "clean row gets an empty errors_note")
	assert.Contains(t, lines[2], "validation error: amount must be greater than zero")
	assert.Equal(t, "nLinesError/nTotLines:1/2", lines[3])
}

func TestRenderErrorCSVJoinsMultipleErrors(t *testing.T) {
	data := []byte(sampleHeader +
		"1;;;80014930329;;;;;0;123;Rossi;;;\n")
	rowErrs := []RowError{
		{RowNumber: 1, Errors: []string{"amount must be greater than zero", "debtor_id_fiscal_code must be 11 characters"}},
	}

	out, err := RenderErrorCSV(data, rowErrs, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "amount must be greater than zero; debtor_id_fiscal_code must be 11 characters")
	assert.Contains(t, out, "nLinesError/nTotLines:1/1")
}

func TestRenderErrorCSVEmptyInput(t *testing.T) {
	_, err := RenderErrorCSV(nil, nil, 0)
	assert.Error(t, err)
}
